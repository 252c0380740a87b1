package httpserver

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// ServerConfig holds listener settings for the HTTP server.
type ServerConfig struct {
	Addr         string
	TLSCertFile  string
	TLSKeyFile   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// GetCertificate serves certificates dynamically. When set it takes
	// precedence over the certificate files.
	GetCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error)
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	certFile   string
	keyFile    string
	dynamic    bool
}

// New creates a new HTTP server.
func New(cfg ServerConfig, handler http.Handler) *Server {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.GetCertificate != nil {
		tlsConfig.GetCertificate = cfg.GetCertificate
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			TLSConfig:         tlsConfig,
		},
		handler:  handler,
		certFile: cfg.TLSCertFile,
		keyFile:  cfg.TLSKeyFile,
		dynamic:  cfg.GetCertificate != nil,
	}
}

// TLSEnabled reports whether a certificate is configured.
func (s *Server) TLSEnabled() bool {
	return s.dynamic || (s.certFile != "" && s.keyFile != "")
}

// certPair returns the files handed to the TLS listener. They are empty
// when certificates come from GetCertificate.
func (s *Server) certPair() (string, string) {
	if s.dynamic {
		return "", ""
	}
	return s.certFile, s.keyFile
}

// ListenAndServe starts the server, with TLS when a certificate is configured.
// It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	var err error
	if s.TLSEnabled() {
		certFile, keyFile := s.certPair()
		err = s.httpServer.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on l until Shutdown. It returns nil after Shutdown.
func (s *Server) Serve(l net.Listener) error {
	var err error
	if s.TLSEnabled() {
		certFile, keyFile := s.certPair()
		err = s.httpServer.ServeTLS(l, certFile, keyFile)
	} else {
		err = s.httpServer.Serve(l)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
