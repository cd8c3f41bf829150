// Package fulfillment holds the provider neutral description of a print order.
package fulfillment

// ExternalIDPrefix namespaces our orders in the provider dashboard.
const ExternalIDPrefix = "mw_"

// ExternalIDMaxLen is the provider's limit for external ids.
const ExternalIDMaxLen = 32

// FileTypeDefault is the print file placement used for every item.
const FileTypeDefault = "default"

type Recipient struct {
	Name        string
	Email       string
	Address1    string
	Address2    string
	City        string
	StateCode   string
	CountryCode string
	Zip         string
}

type File struct {
	Type string
	URL  string
}

type LineItem struct {
	VariantID int64
	Quantity  int
	Files     []File
}

// Request is everything the provider needs to print and ship one order.
type Request struct {
	ExternalID string
	Recipient  Recipient
	Items      []LineItem
}

// ExternalID derives the provider side order reference from a checkout session id.
func ExternalID(sessionID string) string {
	id := ExternalIDPrefix + sessionID
	if len(id) > ExternalIDMaxLen {
		id = id[:ExternalIDMaxLen]
	}
	return id
}
