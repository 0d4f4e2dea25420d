package types

// Place is a resolved address.
type Place struct {
	Query            string `json:"query"`
	FormattedAddress string `json:"formatted_address"`
	Location         Point  `json:"location"`
}
