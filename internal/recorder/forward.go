package recorder

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const forwardTimeout = 30 * time.Second

// Forwarder proxies recording chunks to a remote sink when the deployment
// keeps recordings off the SFU host.
type Forwarder struct {
	endpoint string
	client   *fasthttp.Client
}

func NewForwarder(endpoint string) *Forwarder {
	return &Forwarder{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &fasthttp.Client{
			MaxConnsPerHost: 16,
		},
	}
}

func (f *Forwarder) Sync(fileName string, body []byte) error {
	return f.post("/recSync?fileName="+url.QueryEscape(fileName), body)
}

func (f *Forwarder) Finalize(fileName, durationMs string) error {
	uri := "/recSyncFinalize?fileName=" + url.QueryEscape(fileName)
	if durationMs != "" {
		uri += "&durationMs=" + url.QueryEscape(durationMs)
	}
	return f.post(uri, nil)
}

func (f *Forwarder) post(uri string, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.endpoint + uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	req.SetBody(body)

	if err := f.client.DoTimeout(req, resp, forwardTimeout); err != nil {
		return err
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("remote sink replied %d", resp.StatusCode())
	}
	return nil
}
