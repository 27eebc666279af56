package render

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pendergraft/permitclaim/internal/format"
	"github.com/pendergraft/permitclaim/internal/permits/domain"
)

// Renderer fills a claim page through a ViewBinding. Rendering is best
// effort: missing elements are logged and skipped.
type Renderer struct {
	binding ViewBinding
	logger  *slog.Logger
}

// NewRenderer creates a renderer for pages matching binding.
func NewRenderer(binding ViewBinding, logger *slog.Logger) *Renderer {
	return &Renderer{binding: binding, logger: logger}
}

// Binding returns the page contract of the renderer.
func (r *Renderer) Binding() ViewBinding {
	return r.binding
}

type detail struct {
	name  string
	value string // raw HTML; empty rows are omitted
}

// Rendered reports whether the claim table was already filled.
func (r *Renderer) Rendered(doc *Document) bool {
	table := doc.ByID(r.binding.Table)
	if table == nil {
		return false
	}
	v, _ := Attr(table, r.binding.RenderedAttr)
	return v == "true"
}

// RenderERC20 writes a fungible reward: amount, recipient, token and the
// From/Expiry/Balance/Allowance details.
func (r *Renderer) RenderERC20(doc *Document, p domain.Permit, treasury domain.Treasury, explorerURL string) {
	if r.Rendered(doc) {
		return
	}

	amount := p.Amount.String()
	if treasury.Known() {
		amount = format.FormatUnits(p.Amount, treasury.Decimals) + " " + treasury.Symbol
	}
	r.setText(doc, r.binding.Amount, amount)

	r.renderRecipient(doc, p.Beneficiary.Hex(), explorerURL)
	r.renderToken(doc, p.Token.Hex(), explorerURL)

	expiry, _ := format.FormatDeadline(p.Deadline)
	r.renderDetails(doc, []detail{
		{"From", link(explorerURL+"/address/"+p.Owner.Hex(), p.Owner.Hex())},
		{"Expiry", html.EscapeString(expiry)},
		{"Balance", treasuryValue(treasury.Balance, treasury)},
		{"Allowance", treasuryValue(treasury.Allowance, treasury)},
	})
	r.linkViewClaim(doc, p.TxHash, explorerURL)
	r.markRendered(doc)
}

// RenderERC721 writes a non-fungible reward with its GitHub contribution details.
func (r *Renderer) RenderERC721(doc *Document, p domain.Permit, explorerURL string) {
	if r.Rendered(doc) {
		return
	}

	r.setText(doc, r.binding.Amount, p.Amount.String())
	r.renderRecipient(doc, p.Beneficiary.Hex(), explorerURL)
	r.renderToken(doc, p.Token.Hex(), explorerURL)

	var md domain.NFTMetadata
	if p.NFTMetadata != nil {
		md = *p.NFTMetadata
	}
	expiry, _ := format.FormatDeadline(p.Deadline)
	r.renderDetails(doc, []detail{
		{"NFT address", link(explorerURL+"/address/"+p.Token.Hex(), p.Token.Hex())},
		{"Expiry", html.EscapeString(expiry)},
		{"GitHub Organization", link("https://github.com/"+md.Organization, md.Organization)},
		{"GitHub Repository", link("https://github.com/"+md.Organization+"/"+md.Repository, md.Repository)},
		{"GitHub Issue", link("https://github.com/"+md.Organization+"/"+md.Repository+"/issues/"+md.IssueID, md.IssueID)},
		{"GitHub Username", link("https://github.com/"+md.Username, md.Username)},
		{"Contribution Type", html.EscapeString(strings.Join(strings.Split(md.ContributionType, ","), ", "))},
	})
	r.linkViewClaim(doc, p.TxHash, explorerURL)
	r.markRendered(doc)
}

// ApplyControls shows or hides the reward buttons to match state.
func (r *Renderer) ApplyControls(doc *Document, state domain.UIState) {
	for class, visible := range map[string]bool{
		r.binding.MakeClaim:   state.MakeClaim,
		r.binding.Loader:      state.Loader,
		r.binding.ViewClaim:   state.ViewClaim,
		r.binding.Invalidator: state.Invalidator,
	} {
		n := doc.Query(r.binding.Controls, class)
		if n == nil {
			r.logger.Warn("control not found", "class", class)
			continue
		}
		if visible {
			RemoveAttr(n, "hidden")
		} else {
			SetAttr(n, "hidden", "")
		}
	}
}

func (r *Renderer) renderRecipient(doc *Document, address, explorerURL string) {
	full := doc.Query(r.binding.Recipient, r.binding.Full)
	short := doc.Query(r.binding.Recipient, r.binding.Short)
	// Pages of already claimed rewards may drop these.
	if full == nil || short == nil {
		r.logger.Error("recipient fields not found", "id", r.binding.Recipient)
		return
	}
	r.setFields(full, short, address)
	r.wrapLink(doc.ByID(r.binding.Recipient), explorerURL+"/address/"+address)
}

func (r *Renderer) renderToken(doc *Document, address, explorerURL string) {
	full := doc.Query(r.binding.TokenFields, r.binding.Full)
	short := doc.Query(r.binding.TokenFields, r.binding.Short)
	if full == nil || short == nil {
		r.logger.Error("token fields not found", "id", r.binding.TokenFields)
		return
	}
	r.setFields(full, short, address)

	token := doc.ByID(r.binding.Token)
	if token == nil {
		r.logger.Error("token link not found", "id", r.binding.Token)
		return
	}
	r.wrapLink(token, explorerURL+"/token/"+address)
}

func (r *Renderer) setFields(full, short *html.Node, address string) {
	if err := SetInnerHTML(full, "<div>"+html.EscapeString(address)+"</div>"); err != nil {
		r.logger.Error("writing full address", "error", err)
	}
	if err := SetInnerHTML(short, "<div>"+html.EscapeString(format.Shorten(address))+"</div>"); err != nil {
		r.logger.Error("writing short address", "error", err)
	}
}

func (r *Renderer) wrapLink(n *html.Node, href string) {
	if n == nil {
		return
	}
	wrapChildren(n, atom.A,
		html.Attribute{Key: "target", Val: "_blank"},
		html.Attribute{Key: "rel", Val: "noopener noreferrer"},
		html.Attribute{Key: "href", Val: href},
	)
}

func (r *Renderer) renderDetails(doc *Document, details []detail) {
	table := doc.ByID(r.binding.DetailsTable)
	if table == nil {
		r.logger.Error("details table not found", "id", r.binding.DetailsTable)
		return
	}
	var b strings.Builder
	for _, d := range details {
		if d.value == "" {
			continue
		}
		fmt.Fprintf(&b, "<tr><th><div>%s</div></th><td><div>%s</div></td></tr>", d.name, d.value)
	}
	if err := SetInnerHTML(table, b.String()); err != nil {
		r.logger.Error("writing details table", "error", err)
	}
}

func (r *Renderer) setText(doc *Document, id, text string) {
	n := doc.ByID(id)
	if n == nil {
		r.logger.Error("element not found", "id", id)
		return
	}
	removeChildren(n)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func (r *Renderer) linkViewClaim(doc *Document, txHash, explorerURL string) {
	if txHash == "" {
		return
	}
	if n := doc.Query(r.binding.Controls, r.binding.ViewClaim); n != nil {
		SetAttr(n, "href", explorerURL+"/tx/"+txHash)
	}
}

func (r *Renderer) markRendered(doc *Document) {
	table := doc.ByID(r.binding.Table)
	if table == nil {
		r.logger.Error("claim table not found", "id", r.binding.Table)
		return
	}
	SetAttr(table, r.binding.RenderedAttr, "true")
}

// treasuryValue formats a balance or allowance; negative means unknown.
func treasuryValue(v *big.Int, t domain.Treasury) string {
	if v == nil || v.Sign() < 0 || !t.Known() {
		return "N/A"
	}
	return html.EscapeString(format.FormatUnits(v, t.Decimals) + " " + t.Symbol)
}

// link renders an anchor; empty text yields an empty (omitted) value.
func link(href, text string) string {
	if text == "" {
		return ""
	}
	return fmt.Sprintf(`<a target="_blank" rel="noopener noreferrer" href="%s">%s</a>`,
		html.EscapeString(href), html.EscapeString(text))
}
