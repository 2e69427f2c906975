package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stellar-anchor/depositsd/internal/txn"
)

// Postgres implements Repository and HeartbeatStore over a shared
// *sqlx.DB, the same jmoiron/sqlx + lib/pq pairing the pack's Stellar
// disbursement-platform repo uses for its transaction submission store.
type Postgres struct {
	db *sqlx.DB
}

var (
	_ Repository     = (*Postgres)(nil)
	_ HeartbeatStore = (*Postgres)(nil)
)

// Open connects to dsn and verifies connectivity.
func Open(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// row is the flat column shape of the deposit_transaction table; scanning
// into this and converting keeps sqlx struct tags out of the txn package,
// which stays free of persistence concerns.
type row struct {
	ID                        string         `db:"id"`
	Kind                      string         `db:"kind"`
	AssetCode                 string         `db:"asset_code"`
	AssetIssuer               string         `db:"asset_issuer"`
	AssetSignificantDecimals  int32          `db:"asset_significant_decimals"`
	DistributionAccount       string         `db:"distribution_account"`
	QuoteID                   sql.NullString `db:"quote_id"`
	ToAddress                 string         `db:"to_address"`
	AmountIn                  sql.NullString `db:"amount_in"`
	AmountFee                 sql.NullString `db:"amount_fee"`
	AmountOut                 sql.NullString `db:"amount_out"`
	Status                    string         `db:"status"`
	SubmissionStatus          string         `db:"submission_status"`
	PendingSignatures         bool           `db:"pending_signatures"`
	EnvelopeXDR               sql.NullString `db:"envelope_xdr"`
	ClaimableBalanceSupported bool           `db:"claimable_balance_supported"`
	ClaimableBalanceID        sql.NullString `db:"claimable_balance_id"`
	StellarTransactionID      sql.NullString `db:"stellar_transaction_id"`
	PagingToken               sql.NullString `db:"paging_token"`
	Queue                     sql.NullString `db:"queue"`
	QueuedAt                  sql.NullTime   `db:"queued_at"`
	CompletedAt               sql.NullTime   `db:"completed_at"`
	StatusMessage             sql.NullString `db:"status_message"`
	OnChangeCallbackURL       sql.NullString `db:"on_change_callback_url"`
}

func (r row) toTransaction() *txn.Transaction {
	t := &txn.Transaction{
		ID:   r.ID,
		Kind: txn.Kind(r.Kind),
		Asset: txn.Asset{
			Code:                 r.AssetCode,
			Issuer:               r.AssetIssuer,
			SignificantDecimals:  r.AssetSignificantDecimals,
			DistributionAccount:  r.DistributionAccount,
		},
		ToAddress:                 r.ToAddress,
		Status:                    txn.Status(r.Status),
		SubmissionStatus:          txn.SubmissionStatus(r.SubmissionStatus),
		PendingSignatures:         r.PendingSignatures,
		ClaimableBalanceSupported: r.ClaimableBalanceSupported,
	}
	if r.QuoteID.Valid {
		t.Quote = &txn.Quote{ID: r.QuoteID.String}
	}
	if r.AmountIn.Valid {
		t.AmountIn, _ = decimal.NewFromString(r.AmountIn.String)
	}
	if r.AmountFee.Valid {
		t.AmountFee, _ = decimal.NewFromString(r.AmountFee.String)
	}
	if r.AmountOut.Valid {
		t.AmountOut, _ = decimal.NewFromString(r.AmountOut.String)
	}
	if r.EnvelopeXDR.Valid {
		t.EnvelopeXDR = r.EnvelopeXDR.String
	}
	if r.ClaimableBalanceID.Valid {
		t.ClaimableBalanceID = r.ClaimableBalanceID.String
	}
	if r.StellarTransactionID.Valid {
		t.StellarTransactionID = r.StellarTransactionID.String
	}
	if r.PagingToken.Valid {
		t.PagingToken = r.PagingToken.String
	}
	if r.Queue.Valid {
		t.Queue = r.Queue.String
	}
	if r.QueuedAt.Valid {
		qa := r.QueuedAt.Time
		t.QueuedAt = &qa
	}
	if r.CompletedAt.Valid {
		ca := r.CompletedAt.Time
		t.CompletedAt = &ca
	}
	if r.StatusMessage.Valid {
		t.StatusMessage = r.StatusMessage.String
	}
	if r.OnChangeCallbackURL.Valid {
		t.OnChangeCallbackURL = r.OnChangeCallbackURL.String
	}
	return t
}

const selectColumns = `
	id, kind, asset_code, asset_issuer, asset_significant_decimals, distribution_account,
	quote_id, to_address, amount_in, amount_fee, amount_out, status, submission_status,
	pending_signatures, envelope_xdr, claimable_balance_supported, claimable_balance_id,
	stellar_transaction_id, paging_token, queue, queued_at, completed_at, status_message,
	on_change_callback_url
`

func (p *Postgres) query(ctx context.Context, query string, args ...interface{}) ([]*txn.Transaction, error) {
	var rows []row
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying deposit_transaction: %w", err)
	}
	out := make([]*txn.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTransaction())
	}
	return out, nil
}

func (p *Postgres) RailsCandidates(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE status IN ('pending_user_transfer_start', 'pending_external')
		AND kind IN ('deposit', 'deposit-exchange')
		ORDER BY id`)
}

func (p *Postgres) PendingFundingCandidates(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE submission_status = 'pending_funding'
		AND kind IN ('deposit', 'deposit-exchange')
		ORDER BY id`)
}

func (p *Postgres) PendingTrustCandidates(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE status = 'pending_trust' AND submission_status = 'pending_trust'
		AND kind IN ('deposit', 'deposit-exchange')
		ORDER BY id`)
}

// UnblockedCandidates preserves the source's mixed-condition disjunction
// (spec.md §9 Open Questions: "whether the scavenger should also pick up
// multi-sig envelope_xdr-ready rows that were never blocked"). Both legs
// are queried explicitly rather than folded into one opaque clause.
func (p *Postgres) UnblockedCandidates(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE kind IN ('deposit', 'deposit-exchange')
		AND (
			(status = 'pending_anchor' AND submission_status = 'unblocked')
			OR (status = 'pending_anchor' AND pending_signatures = false AND envelope_xdr IS NOT NULL AND submission_status != 'completed')
		)
		ORDER BY id`)
}

func (p *Postgres) RehydrateQueue(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE queue = $1 AND submission_status IN ('ready', 'processing')
		AND kind IN ('deposit', 'deposit-exchange') AND queued_at IS NOT NULL
		ORDER BY queued_at ASC`, txn.SubmitTransactionQueue)
}

func (p *Postgres) ReconcileCandidates(ctx context.Context) ([]*txn.Transaction, error) {
	return p.query(ctx, `SELECT `+selectColumns+` FROM deposit_transaction
		WHERE stellar_transaction_id IS NOT NULL AND status NOT IN ('completed', 'error')
		AND kind IN ('deposit', 'deposit-exchange')
		ORDER BY id`)
}

func (p *Postgres) Save(ctx context.Context, t *txn.Transaction) error {
	_, err := p.db.NamedExecContext(ctx, `
		UPDATE deposit_transaction SET
			amount_fee = :amount_fee,
			amount_out = :amount_out,
			status = :status,
			submission_status = :submission_status,
			envelope_xdr = :envelope_xdr,
			claimable_balance_id = :claimable_balance_id,
			stellar_transaction_id = :stellar_transaction_id,
			paging_token = :paging_token,
			queue = :queue,
			queued_at = :queued_at,
			completed_at = :completed_at,
			status_message = :status_message
		WHERE id = :id`, fromTransaction(t))
	if err != nil {
		return fmt.Errorf("saving transaction %s: %w", t.ID, err)
	}
	return nil
}

func fromTransaction(t *txn.Transaction) row {
	r := row{
		ID:               t.ID,
		Status:           string(t.Status),
		SubmissionStatus: string(t.SubmissionStatus),
	}
	r.AmountFee = sql.NullString{String: t.AmountFee.String(), Valid: !t.AmountFee.IsZero() || t.IsQuoted()}
	r.AmountOut = sql.NullString{String: t.AmountOut.String(), Valid: !t.AmountOut.IsZero()}
	if t.EnvelopeXDR != "" {
		r.EnvelopeXDR = sql.NullString{String: t.EnvelopeXDR, Valid: true}
	}
	if t.ClaimableBalanceID != "" {
		r.ClaimableBalanceID = sql.NullString{String: t.ClaimableBalanceID, Valid: true}
	}
	if t.StellarTransactionID != "" {
		r.StellarTransactionID = sql.NullString{String: t.StellarTransactionID, Valid: true}
	}
	if t.PagingToken != "" {
		r.PagingToken = sql.NullString{String: t.PagingToken, Valid: true}
	}
	if t.Queue != "" {
		r.Queue = sql.NullString{String: t.Queue, Valid: true}
	}
	if t.QueuedAt != nil {
		r.QueuedAt = sql.NullTime{Time: *t.QueuedAt, Valid: true}
	}
	if t.CompletedAt != nil {
		r.CompletedAt = sql.NullTime{Time: *t.CompletedAt, Valid: true}
	}
	if t.StatusMessage != "" {
		r.StatusMessage = sql.NullString{String: t.StatusMessage, Valid: true}
	}
	return r
}

// heartbeatRow is the heartbeat table's row shape.
type heartbeatRow struct {
	Key           string    `db:"key"`
	LastHeartbeat time.Time `db:"last_heartbeat"`
}

func (p *Postgres) AcquireOrRefresh(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return false, fmt.Errorf("beginning heartbeat transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing heartbeatRow
	err = tx.GetContext(ctx, &existing, `SELECT key, last_heartbeat FROM processor_heartbeat WHERE key = $1 FOR UPDATE`, key)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `INSERT INTO processor_heartbeat (key, last_heartbeat) VALUES ($1, $2)`, key, now); err != nil {
			return false, fmt.Errorf("inserting heartbeat: %w", err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("loading heartbeat: %w", err)
	}

	if now.Sub(existing.LastHeartbeat) <= staleAfter {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE processor_heartbeat SET last_heartbeat = $2 WHERE key = $1`, key, now); err != nil {
		return false, fmt.Errorf("refreshing stale heartbeat: %w", err)
	}
	return true, tx.Commit()
}

func (p *Postgres) Refresh(ctx context.Context, key string, now time.Time) error {
	_, err := p.db.ExecContext(ctx, `UPDATE processor_heartbeat SET last_heartbeat = $2 WHERE key = $1`, key, now)
	if err != nil {
		return fmt.Errorf("refreshing heartbeat: %w", err)
	}
	return nil
}

func (p *Postgres) Release(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM processor_heartbeat WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("releasing heartbeat: %w", err)
	}
	return nil
}
