package domain

// Record is an untyped JSON object as returned by the synchronous endpoints
// (campaign listing, campaign-level reports).
type Record = map[string]any

// Campaign list fields serialised to JSON strings when flattened.
var CampaignSerializedFields = []string{
	"budgetOrders",
	"countriesOrRegions",
	"countryOrRegionServingStateReasons",
	"locInvoiceDetails",
	"servingStateReasons",
	"supplySources",
}

// Campaign-level report money fields serialised to JSON strings when flattened.
var SpendRowSerializedFields = []string{
	"avgCPA",
	"avgCPM",
	"avgCPT",
	"localSpend",
}
