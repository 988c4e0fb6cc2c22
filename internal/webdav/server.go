package webdav

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/webdav"

	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/drive"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// exposedHeaders are the response headers browsers may read across
// origins.
const exposedHeaders = "DAV, ETag, Content-Range, Content-Length, WWW-Authenticate"

// allowedMethods is the full method set a DAV client needs.
const allowedMethods = "GET, HEAD, POST, PUT, DELETE, OPTIONS, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE, LOCK, UNLOCK"

// Server is the WebDAV frontend over a drive.
type Server struct {
	cfg  *config.WebDAVConfig
	fs   *FileSystem
	log  *logging.Logger
	http *http.Server
}

// NewServer wires the drive into a WebDAV handler with basic auth and
// CORS.
func NewServer(cfg *config.WebDAVConfig, d *drive.Drive, log *logging.Logger) *Server {
	s := &Server{
		cfg: cfg,
		fs:  NewFileSystem(d, log),
		log: log,
	}

	davHandler := &webdav.Handler{
		FileSystem: s.fs,
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Err(err).Msg("dav request failed")
			}
		},
	}

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.cors(s.basicAuth(davHandler)),
	}
	return s
}

// Start serves until the listener fails or Shutdown is called. With the
// https protocol a self-signed certificate is created under the state
// directory on first use.
func (s *Server) Start() error {
	s.log.Info().Str("url", s.cfg.URL()).Str("user", s.cfg.Username).Msg("webdav server starting")

	if s.cfg.Protocol == "https" {
		sslDir, err := config.WebDAVSSLDir()
		if err != nil {
			return err
		}
		certPath, keyPath, err := EnsureCertificate(sslDir, s.cfg.Host)
		if err != nil {
			return err
		}
		return s.http.ListenAndServeTLS(certPath, keyPath)
	}
	return s.http.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// basicAuth enforces the configured credentials on every request.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.Username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.Password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="filen-webdav"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// cors echoes the request origin instead of using a wildcard, which is
// required for credentialed cross-origin requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Probe checks whether a WebDAV server answers at the given base URL by
// sending an authenticated PROPFIND for the root.
func Probe(baseURL, username, password string) error {
	req, err := http.NewRequest("PROPFIND", baseURL+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Depth", "0")
	req.SetBasicAuth(username, password)

	// The https listener uses a self-signed certificate, so the probe
	// cannot verify the chain.
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webdav probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return fmt.Errorf("webdav probe got status %d", resp.StatusCode)
	}
	return nil
}
