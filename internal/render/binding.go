package render

// ViewBinding names the page elements the renderer writes into. Pages must
// carry every id and class listed here.
type ViewBinding struct {
	Table        string // table marked once rendered
	RenderedAttr string
	Amount       string
	DetailsTable string
	Token        string // link wrapping the token fields
	TokenFields  string // scope of the token full/short fields
	Recipient    string // link wrapping and scope of the recipient fields
	Full         string
	Short        string

	Controls    string
	MakeClaim   string
	Loader      string
	ViewClaim   string
	Invalidator string
}

// DefaultBinding matches the built-in claim page.
func DefaultBinding() ViewBinding {
	return ViewBinding{
		Table:        "claimTable",
		RenderedAttr: "data-claim-rendered",
		Amount:       "rewardAmount",
		DetailsTable: "additionalDetailsTable",
		Token:        "rewardToken",
		TokenFields:  "Token",
		Recipient:    "rewardRecipient",
		Full:         "full",
		Short:        "short",
		Controls:     "controls",
		MakeClaim:    "make-claim",
		Loader:       "loader",
		ViewClaim:    "view-claim",
		Invalidator:  "invalidator",
	}
}
