package application

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// flexNumber decodes a vendor numeric field that may arrive as a JSON number,
// a string with either decimal separator, null or garbage. Anything that does
// not parse becomes 0.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	*f = flexNumber(parseNumber(b))
	return nil
}

// flexString decodes a vendor text or id field that may arrive as a string or a number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*s = ""
			return nil
		}
		*s = flexString(strings.TrimSpace(str))
		return nil
	}
	*s = flexString(string(b))
	return nil
}

func parseNumber(b []byte) float64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}

	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return 0
		}
	}
	return coerceDecimal(raw)
}

// coerceDecimal parses "45.00", "45,00" and "1.234,56". A comma marks the
// decimal separator and any dots before it are thousands separators.
func coerceDecimal(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// businessDateOf truncates a vendor date or datetime ("2025-09-06",
// "2025-09-06T03:00:00", "2025-09-06 23:10:00") to its calendar date.
// fallback is returned when raw is empty or unparseable.
func businessDateOf(raw flexString, fallback time.Time) time.Time {
	s := string(raw)
	if len(s) < len(model.DateLayout) {
		return fallback
	}
	d, err := time.Parse(model.DateLayout, s[:len(model.DateLayout)])
	if err != nil {
		return fallback
	}
	return d
}

func parseHour(raw flexString) (int, bool) {
	s := string(raw)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

var paidAtLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parseTimestamp(raw flexString) time.Time {
	for _, layout := range paidAtLayouts {
		if t, err := time.Parse(layout, string(raw)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Vendor row shapes. Unknown fields are ignored.

type hourlyRow struct {
	Hour        flexString `json:"hora"`
	ProductID   flexString `json:"prd"`
	ProductDesc flexString `json:"prd_desc"`
	Quantity    flexNumber `json:"q"`
	AmountPaid  flexNumber `json:"valorpago"`
	Date        flexString `json:"dt_gerencial"`
}

type analyticRow struct {
	SaleID      flexString `json:"vd"`
	ItemID      flexString `json:"itm"`
	ProductID   flexString `json:"prd"`
	ProductDesc flexString `json:"prd_desc"`
	GroupDesc   flexString `json:"grp_desc"`
	Quantity    flexNumber `json:"qtd"`
	UnitPrice   flexNumber `json:"vr_unit"`
	Total       flexNumber `json:"valorfinal"`
	Employee    flexString `json:"usr_lancou"`
	Date        flexString `json:"dt_gerencial"`
}

type paymentRow struct {
	SaleID    flexString `json:"vd"`
	PaymentID flexString `json:"pag"`
	Method    flexString `json:"meio"`
	Amount    flexNumber `json:"valor"`
	Fee       flexNumber `json:"taxa"`
	NetAmount flexNumber `json:"liquido"`
	PaidAt    flexString `json:"hr_lancamento"`
	Date      flexString `json:"dt_gerencial"`
}

type payableRow struct {
	ScheduleID  flexString `json:"scheduleId"`
	DueDate     flexString `json:"dueDate"`
	Description flexString `json:"description"`
	Category    struct {
		Name flexString `json:"name"`
	} `json:"category"`
	Stakeholder struct {
		Name flexString `json:"name"`
	} `json:"stakeholder"`
	Value      flexNumber `json:"value"`
	PaidValue  flexNumber `json:"paidValue"`
	IsPaid     bool       `json:"isPaid"`
	UpdateDate flexString `json:"updateDate"`
}

// mapRecord converts one queue item's raw vendor record into its canonical
// record. The returned value is a model.HourlySale, model.AnalyticLine,
// model.Payment or model.ScheduledPayable. Unusable records return a
// *model.MappingError naming the offending field.
func mapRecord(item model.QueueItem) (any, error) {
	if !item.DataType.Valid() {
		return nil, &model.MappingError{DataType: item.DataType, Reason: "unknown data type"}
	}

	raw := bytes.TrimSpace(item.RawData)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, &model.MappingError{DataType: item.DataType, Reason: "record is not a JSON object"}
	}

	switch item.DataType {
	case model.DataTypeHourlySales:
		return mapHourly(item, raw)
	case model.DataTypeAnalytic:
		return mapAnalytic(item, raw)
	case model.DataTypePayments:
		return mapPayment(item, raw)
	default:
		return mapPayable(item, raw)
	}
}

func mapHourly(item model.QueueItem, raw []byte) (any, error) {
	var row hourlyRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, decodeFailure(item.DataType, err)
	}

	hour, ok := parseHour(row.Hour)
	if !ok {
		return nil, &model.MappingError{DataType: item.DataType, Reason: fmt.Sprintf("field hora: invalid hour %q", row.Hour)}
	}
	if row.ProductID == "" {
		return nil, missingField(item.DataType, "prd")
	}

	return model.HourlySale{
		TenantID:     item.TenantID,
		BusinessDate: businessDateOf(row.Date, item.BusinessDate),
		Hour:         hour,
		ProductID:    string(row.ProductID),
		ProductDesc:  string(row.ProductDesc),
		Quantity:     float64(row.Quantity),
		AmountPaid:   float64(row.AmountPaid),
	}, nil
}

func mapAnalytic(item model.QueueItem, raw []byte) (any, error) {
	var row analyticRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, decodeFailure(item.DataType, err)
	}

	if row.ProductID == "" {
		return nil, missingField(item.DataType, "prd")
	}
	lineID := string(row.ItemID)
	if row.SaleID != "" {
		lineID = string(row.SaleID) + "/" + lineID
	}
	if lineID == "" {
		return nil, missingField(item.DataType, "itm")
	}

	return model.AnalyticLine{
		TenantID:     item.TenantID,
		BusinessDate: businessDateOf(row.Date, item.BusinessDate),
		LineID:       lineID,
		ProductID:    string(row.ProductID),
		ProductDesc:  string(row.ProductDesc),
		GroupDesc:    string(row.GroupDesc),
		Quantity:     float64(row.Quantity),
		UnitPrice:    float64(row.UnitPrice),
		Total:        float64(row.Total),
		Employee:     string(row.Employee),
	}, nil
}

func mapPayment(item model.QueueItem, raw []byte) (any, error) {
	var row paymentRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, decodeFailure(item.DataType, err)
	}

	if row.PaymentID == "" {
		return nil, missingField(item.DataType, "pag")
	}

	net := float64(row.NetAmount)
	if net == 0 && row.Amount != 0 {
		net = float64(row.Amount) - float64(row.Fee)
	}

	return model.Payment{
		TenantID:     item.TenantID,
		BusinessDate: businessDateOf(row.Date, item.BusinessDate),
		PaymentID:    string(row.PaymentID),
		Method:       string(row.Method),
		Amount:       float64(row.Amount),
		Fee:          float64(row.Fee),
		NetAmount:    net,
		PaidAt:       parseTimestamp(row.PaidAt),
	}, nil
}

func mapPayable(item model.QueueItem, raw []byte) (any, error) {
	var row payableRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, decodeFailure(item.DataType, err)
	}

	if row.ScheduleID == "" {
		return nil, missingField(item.DataType, "scheduleId")
	}

	status := "open"
	if row.IsPaid {
		status = "paid"
	}

	return model.ScheduledPayable{
		TenantID:     item.TenantID,
		ScheduleID:   string(row.ScheduleID),
		BusinessDate: businessDateOf(row.DueDate, item.BusinessDate),
		Description:  string(row.Description),
		Category:     string(row.Category.Name),
		Supplier:     string(row.Stakeholder.Name),
		Amount:       float64(row.Value),
		PaidAmount:   float64(row.PaidValue),
		Status:       status,
		UpdatedAt:    parseTimestamp(row.UpdateDate),
	}, nil
}

func missingField(dt model.DataType, field string) error {
	return &model.MappingError{DataType: dt, Reason: "missing required field " + field}
}

func decodeFailure(dt model.DataType, err error) error {
	return &model.MappingError{DataType: dt, Reason: "decode: " + err.Error()}
}
