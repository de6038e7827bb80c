package domain

import "time"

// Sale is a completed sale reported by a vendor.
type Sale struct {
	SalesType       string    `json:"sales_type,omitempty"`
	CementCompany   string    `json:"cement_company,omitempty"`
	CementQty       string    `json:"cement_qty,omitempty"`
	CementPrice     *float64  `json:"cement_price,omitempty"`
	TMTCompany      string    `json:"tmt_company,omitempty"`
	TMTSizes        string    `json:"tmt_sizes,omitempty"`
	TMTPrices       string    `json:"tmt_prices,omitempty"`
	TMTQuantities   string    `json:"tmt_quantities,omitempty"`
	ProjectOwner    string    `json:"project_owner,omitempty"`
	ProjectName     string    `json:"project_name,omitempty"`
	ProjectLocation string    `json:"project_location,omitempty"`
	CompletionTime  int       `json:"completion_time,omitempty"`
	ContactNumber   string    `json:"contact_number,omitempty"`
	SalesRepName    string    `json:"sales_rep_name,omitempty"`
	Platform        Platform  `json:"platform,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	RecordedAt      time.Time `json:"recorded_at,omitzero"`
}

// Company returns whichever company name the sale carries.
func (s Sale) Company() string {
	if s.CementCompany != "" {
		return s.CementCompany
	}
	return s.TMTCompany
}
