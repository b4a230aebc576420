package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field is one named request parameter. Requests are ordered field lists;
// encoding preserves the order fields were added in.
type Field struct {
	Name  string
	Value any
}

// Split is one recipient of a fraction of an order's payment.
type Split struct {
	ClientID int
	Username string
	EntityID int
	Value    decimal.Decimal
}

// PaymentRequest carries the fields of a payment reference request, plus the
// optional split entries that turn it into a split-payment submission.
type PaymentRequest struct {
	ClientID     int
	Username     string
	EntityID     int
	OrderCode    string
	Value        decimal.Decimal
	Country      string
	Language     string
	CustomerName string
	Email        string
	Expiration   *time.Time
	Splits       []Split
}

// Parameters builds the ordered parameter list for the request. When split
// entries are present the split-specific fields are appended, including the
// split_json payload.
func (r *PaymentRequest) Parameters() []Field {
	params := []Field{
		{"ep_cin", r.ClientID},
		{"ep_user", r.Username},
		{"ep_entity", r.EntityID},
		{"ep_country", r.Country},
		{"t_value", r.Value},
		{"t_key", r.OrderCode},
		{"ep_ref_type", "auto"},
		{"ep_language", r.Language},
		{"o_name", r.CustomerName},
		{"o_email", r.Email},
		{"o_max_date", r.Expiration},
	}

	if len(r.Splits) > 0 {
		params = append(params,
			Field{"ret_type", "xml"},
			Field{"ep_split", "normal"},
			Field{"split_json", r.splitJSON()},
		)
	}
	return params
}

// splitJSON renders the gateway's split payload: a JSON-shaped string keyed
// by entry index, each entry carrying peer identity and a fixed amount.
func (r *PaymentRequest) splitJSON() string {
	var b strings.Builder
	b.WriteString(`{"split_payment":{`)
	for n, s := range r.Splits {
		if n > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b,
			`"%d":{"ep_user":"%s","ep_partner":"%s","ep_cin":"%d","ep_entity":"%d","ep_country":"%s","t_value":"%s","t_value_type":"fixed"}`,
			n, s.Username, r.Username, s.ClientID, s.EntityID, r.Country, s.Value.StringFixedBank(2))
	}
	b.WriteString("}}")
	return b.String()
}
