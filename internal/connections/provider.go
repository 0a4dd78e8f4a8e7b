// Package connections hands out platform credentials stored in the
// source_connections table.
package connections

import (
	"context"
	"errors"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldsprout/internal/db"
	"fieldsprout/internal/sources"
)

// Sources read from internal data that need no stored connection.
var internalSources = map[db.SourceType]struct{}{
	db.SourceGLSA: {},
}

// Provider implements sources.CredentialProvider. Token refresh happens in
// the OAuth flow that writes the table; an expired row is reported as
// KindAuthExpired.
type Provider struct {
	db     *gorm.DB
	sealer *Sealer
	now    func() time.Time
}

func NewProvider(gdb *gorm.DB, sealer *Sealer) *Provider {
	if sealer == nil {
		sealer = &Sealer{}
	}
	return &Provider{db: gdb, sealer: sealer, now: time.Now}
}

func (p *Provider) Credentials(ctx context.Context, accountID uint, source db.SourceType) (sources.Credentials, error) {
	creds := sources.Credentials{AccountID: accountID, Source: source}
	if _, ok := internalSources[source]; ok {
		return creds, nil
	}

	var conn db.SourceConnection
	err := p.db.WithContext(ctx).
		Where("account_id = ? AND source_type = ?", accountID, source).
		First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return creds, sources.NewError(source, sources.KindNotConnected, "no connection")
	}
	if err != nil {
		return creds, &sources.Error{Source: source, Kind: sources.KindTransient, Msg: "connection lookup failed", Err: err}
	}

	if conn.Status != db.ConnectionActive {
		return creds, sources.NewError(source, sources.KindNotConnected, "connection "+string(conn.Status))
	}
	if conn.ExpiresAt != nil && !conn.ExpiresAt.After(p.now()) {
		return creds, sources.NewError(source, sources.KindAuthExpired, "access token expired, reconnect required")
	}

	token, err := p.sealer.Open(conn.AccessToken)
	if err != nil {
		return creds, &sources.Error{Source: source, Kind: sources.KindAuthExpired, Msg: "stored token unreadable, reconnect required", Err: err}
	}

	creds.ResourceID = conn.ResourceID
	creds.LoginCustomerID = conn.LoginCustomerID
	creds.AccessToken = token
	return creds, nil
}

// Connection is the data the OAuth flow records for one account/source.
type Connection struct {
	AccountID       uint
	Source          db.SourceType
	ResourceID      string
	LoginCustomerID string
	AccessToken     string
	ExpiresAt       *time.Time
}

// Save stores or replaces a connection, sealing its token.
func (p *Provider) Save(ctx context.Context, c Connection) error {
	sealed, err := p.sealer.Seal(c.AccessToken)
	if err != nil {
		return err
	}
	row := db.SourceConnection{
		AccountID:       c.AccountID,
		SourceType:      c.Source,
		ResourceID:      c.ResourceID,
		LoginCustomerID: c.LoginCustomerID,
		AccessToken:     sealed,
		ExpiresAt:       c.ExpiresAt,
		Status:          db.ConnectionActive,
	}
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "source_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"resource_id", "login_customer_id", "access_token", "expires_at", "status", "updated_at"}),
	}).Create(&row).Error
}

// Revoke marks a connection unusable without deleting its history.
func (p *Provider) Revoke(ctx context.Context, accountID uint, source db.SourceType) error {
	return p.db.WithContext(ctx).Model(&db.SourceConnection{}).
		Where("account_id = ? AND source_type = ?", accountID, source).
		Update("status", db.ConnectionRevoked).Error
}

// ConnectedAccounts lists accounts with at least one active connection or
// with leads for a source that needs no connection, in ascending order.
func (p *Provider) ConnectedAccounts(ctx context.Context) ([]uint, error) {
	var connected []uint
	err := p.db.WithContext(ctx).Model(&db.SourceConnection{}).
		Where("status = ?", db.ConnectionActive).
		Distinct().Pluck("account_id", &connected).Error
	if err != nil {
		return nil, err
	}

	internal := make([]string, 0, len(internalSources))
	for src := range internalSources {
		internal = append(internal, string(src))
	}
	var withLeads []uint
	err = p.db.WithContext(ctx).Model(&db.Lead{}).
		Where("source IN ?", internal).
		Distinct().Pluck("account_id", &withLeads).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]struct{}, len(connected)+len(withLeads))
	ids := make([]uint, 0, len(connected)+len(withLeads))
	for _, id := range append(connected, withLeads...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
