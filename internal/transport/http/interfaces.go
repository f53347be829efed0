package http

import (
	"context"
	"net/http"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// Authenticator checks credentials and the device binding
type Authenticator interface {
	Authenticate(ctx context.Context, email, credential string) (domain.Session, error)
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Issue(email, fingerprint string) (string, domain.Session, error)
}

// Catalog resolves the entries visible to an account
type Catalog interface {
	VisibleMods(ctx context.Context, email string) ([]domain.CatalogEntry, error)
	Lookup(ctx context.Context, email, displayName string) (domain.CatalogEntry, error)
	ModViews(ctx context.Context, email string, installed func(internalName string) bool) ([]domain.ModView, error)
}

// InstallState reports whether an artifact is present on disk
type InstallState interface {
	IsInstalled(internalName string) bool
}

// Sessions starts install and uninstall sessions
type Sessions interface {
	StartInstall(ctx context.Context, sess domain.Session, displayName, key string) (<-chan domain.SessionEvent, error)
	StartUninstall(ctx context.Context, sess domain.Session, internalName string) (<-chan domain.SessionEvent, error)
	Active() []domain.SessionSnapshot
}

// EventStream attaches websocket clients for an account
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request, email string) error
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error
