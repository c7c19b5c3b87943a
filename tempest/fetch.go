package tempest

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

const _max_report_size = 64 << 20

// FetchError is a transport failure while downloading a report.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("Error fetching URL: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusError is a non 2xx answer of the report server.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error response %d while requesting '%s'.", e.Code, e.URL)
}

type KerberosConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Krb5Conf string `mapstructure:"krb5_conf"`
	CCache   string `mapstructure:"ccache"`
	//service principal, derived from the report host when empty
	SPN string `mapstructure:"spn"`
}

type Config struct {
	Timeout     time.Duration  `mapstructure:"timeout"`
	InsecureTLS bool           `mapstructure:"insecure_tls"`
	Kerberos    KerberosConfig `mapstructure:"kerberos"`
	Concurrency int            `mapstructure:"concurrency"`
}

// Fetcher downloads reports, authenticating with SPNEGO when the server asks for it
// and kerberos is enabled.
type Fetcher struct {
	hc  *http.Client
	krb *spnego.Client
}

func NewFetcher(cfg Config) (*Fetcher, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	hc := &http.Client{Timeout: timeout, Transport: tr}

	f := &Fetcher{hc: hc}
	if !cfg.Kerberos.Enable {
		return f, nil
	}

	krb, err := newKerberosClient(cfg.Kerberos)
	if err != nil {
		return nil, err
	}
	f.krb = spnego.NewClient(krb, hc, cfg.Kerberos.SPN)
	return f, nil
}

func newKerberosClient(cfg KerberosConfig) (*client.Client, error) {
	confPath := cfg.Krb5Conf
	if confPath == "" {
		confPath = "/etc/krb5.conf"
	}
	kcfg, err := krbconfig.Load(confPath)
	if err != nil {
		return nil, fmt.Errorf("tempest: load krb5 config: %w", err)
	}

	ccPath := cfg.CCache
	if ccPath == "" {
		ccPath = os.Getenv("KRB5CCNAME")
	}
	if ccPath == "" {
		ccPath = fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
	}
	cc, err := credentials.LoadCCache(ccPath)
	if err != nil {
		return nil, fmt.Errorf("tempest: load credential cache: %w", err)
	}

	cl, err := client.NewFromCCache(cc, kcfg, client.DisablePAFXFAST(true))
	if err != nil {
		return nil, fmt.Errorf("tempest: kerberos client: %w", err)
	}
	return cl, nil
}

// Fetch downloads the report body.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	var res *http.Response
	if f.krb != nil {
		res, err = f.krb.Do(req)
	} else {
		res, err = f.hc.Do(req)
	}
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, URL: url}
	}

	b, err := io.ReadAll(io.LimitReader(res.Body, _max_report_size))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	slog.Debug("tempest report fetched", "url", url, "size", len(b))
	return b, nil
}

// Failures fetches and parses the report at url.
func (f *Fetcher) Failures(ctx context.Context, url string) ([]Failure, error) {
	b, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(b))
}
