package templates

// DefaultFooterNote is shown in the shared layout when a page does not supply custom text.
const DefaultFooterNote = "Region codes come from the MOIS standard region code registry (StanReginCd) on data.go.kr."

// EndpointView describes one API endpoint listed on the home page.
type EndpointView struct {
	Method      string
	Path        string
	Example     string
	Description string
}

// HomePageData contains dynamic values rendered on the landing page.
type HomePageData struct {
	Title       string
	Description string
	HasKey      bool
	Catalog     string
	Version     string
	Endpoints   []EndpointView
	FooterNote  string
}

// ErrorPageData holds information for rendering an error view.
type ErrorPageData struct {
	Title       string
	StatusLabel string
	Message     string
}
