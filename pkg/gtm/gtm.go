// Package gtm builds the Google Tag Manager snippets embedded in the document
// shell. The content is fixed; only the container ID is substituted.
package gtm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// DefaultID is the storefront's GTM container.
const DefaultID = "GTM-N5D3D8Q"

const (
	noscriptEndpoint = "https://www.googletagmanager.com/ns.html"
	scriptEndpoint   = "https://www.googletagmanager.com/gtm.js"
)

var ErrInvalidID = errors.New("invalid GTM container id")

var idPattern = regexp.MustCompile(`^GTM-[A-Z0-9]+$`)

// Container is a validated GTM container ID.
type Container struct {
	id string
}

// New validates id and returns a Container for it.
func New(id string) (Container, error) {
	if !idPattern.MatchString(id) {
		return Container{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return Container{id: id}, nil
}

func (c Container) ID() string {
	return c.id
}

// NoscriptURL is the iframe fallback used when JavaScript is disabled.
func (c Container) NoscriptURL() string {
	return noscriptEndpoint + "?" + url.Values{"id": {c.id}}.Encode()
}

// ScriptURL is where the GTM bootstrap fetches gtm.js from.
func (c Container) ScriptURL() string {
	return scriptEndpoint + "?" + url.Values{"id": {c.id}}.Encode()
}

// InitScript sets up the dataLayer queue and gtag on the main thread.
func (c Container) InitScript() string {
	return fmt.Sprintf(`
  dataLayer = window.dataLayer || [];

  function gtag(){
    dataLayer.push(arguments)
  };

  gtag('js', new Date());
  gtag('config', %q);
`, c.id)
}

// LoaderScript injects gtm.js. It is meant to run inside the Partytown worker.
func (c Container) LoaderScript() string {
	return fmt.Sprintf(`
  console.log('Loaded GTM script via partytown');
  (function(w,d,s,l,i){w[l]=w[l]||[];w[l].push({'gtm.start':
  new Date().getTime(),event:'gtm.js'});var f=d.getElementsByTagName(s)[0],
  j=d.createElement(s),dl=l!='dataLayer'?'&l='+l:'';j.async=true;j.src=
  %q+i+dl;f.parentNode.insertBefore(j,f);
  })(window,document,'script','dataLayer', %q);
`, scriptEndpoint+"?id=", c.id)
}
