package postgres

import (
	"context"
	"crypto/rsa"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paynet/ebics-gateway/internal/connection"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/pkg/errors"
)

// ConnectionRepository is the pgxpool-backed connection.Repository.
type ConnectionRepository struct {
	pool *pgxpool.Pool
}

var _ connection.Repository = (*ConnectionRepository)(nil)

func NewConnectionRepository(pool *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{pool: pool}
}

const connectionColumns = `
	id, url, host_id, partner_id, user_id, system_id,
	sig_key, auth_key, enc_key,
	bank_auth_key, bank_enc_key,
	ini_state, hia_state, status, last_error,
	created_at, updated_at`

func (r *ConnectionRepository) Get(ctx context.Context, id string) (*connection.Connection, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+connectionColumns+" FROM connections WHERE id = $1", id)
	c, err := scanConnection(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("connection not found").WithDetails("connection_id", id)
		}
		return nil, errors.Internal("postgres: get connection: %v", err)
	}
	return c, nil
}

func (r *ConnectionRepository) List(ctx context.Context) ([]*connection.Connection, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+connectionColumns+" FROM connections ORDER BY id")
	if err != nil {
		return nil, errors.Internal("postgres: list connections: %v", err)
	}
	defer rows.Close()

	var out []*connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, errors.Internal("postgres: scan connection: %v", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConnectionRepository) Save(ctx context.Context, c *connection.Connection) error {
	sigKey, authKey, encKey, err := marshalKeyTriple(c.Keys)
	if err != nil {
		return err
	}
	bankAuthKey, bankEncKey, err := marshalBankKeys(c.BankKeys)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url, host_id = EXCLUDED.host_id, partner_id = EXCLUDED.partner_id,
			user_id = EXCLUDED.user_id, system_id = EXCLUDED.system_id,
			sig_key = EXCLUDED.sig_key, auth_key = EXCLUDED.auth_key, enc_key = EXCLUDED.enc_key,
			bank_auth_key = EXCLUDED.bank_auth_key, bank_enc_key = EXCLUDED.bank_enc_key,
			ini_state = EXCLUDED.ini_state, hia_state = EXCLUDED.hia_state,
			status = EXCLUDED.status, last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at`,
		c.ID, c.URL, c.HostID, c.PartnerID, c.UserID, c.SystemID,
		sigKey, authKey, encKey, bankAuthKey, bankEncKey,
		string(c.INIState), string(c.HIAState), string(c.Status), c.LastError,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.Internal("postgres: save connection: %v", err)
	}
	return nil
}

func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, "DELETE FROM connections WHERE id = $1", id)
	if err != nil {
		return errors.Internal("postgres: delete connection: %v", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var c connection.Connection
	var sigKey, authKey, encKey, bankAuthKey, bankEncKey []byte
	var iniState, hiaState, status string

	err := row.Scan(
		&c.ID, &c.URL, &c.HostID, &c.PartnerID, &c.UserID, &c.SystemID,
		&sigKey, &authKey, &encKey, &bankAuthKey, &bankEncKey,
		&iniState, &hiaState, &status, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.INIState = connection.KeyState(iniState)
	c.HIAState = connection.KeyState(hiaState)
	c.Status = connection.Status(status)

	if c.Keys, err = unmarshalKeyTriple(sigKey, authKey, encKey); err != nil {
		return nil, err
	}
	if c.BankKeys, err = unmarshalBankKeys(bankAuthKey, bankEncKey); err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalKeyTriple(k connection.KeyTriple) (sig, auth, enc []byte, err error) {
	if sig, err = marshalPrivateOrNil(k.Signature); err != nil {
		return
	}
	if auth, err = marshalPrivateOrNil(k.Authentication); err != nil {
		return
	}
	enc, err = marshalPrivateOrNil(k.Encryption)
	return
}

func marshalPrivateOrNil(k *rsa.PrivateKey) ([]byte, error) {
	if k == nil {
		return nil, nil
	}
	der, err := ebicscrypto.MarshalPKCS8(k)
	if err != nil {
		return nil, errors.Internal("postgres: marshal private key: %v", err)
	}
	return der, nil
}

func unmarshalKeyTriple(sig, auth, enc []byte) (connection.KeyTriple, error) {
	var t connection.KeyTriple
	var err error
	if t.Signature, err = unmarshalPrivateOrNil(sig); err != nil {
		return t, err
	}
	if t.Authentication, err = unmarshalPrivateOrNil(auth); err != nil {
		return t, err
	}
	t.Encryption, err = unmarshalPrivateOrNil(enc)
	return t, err
}

func unmarshalPrivateOrNil(der []byte) (*rsa.PrivateKey, error) {
	if len(der) == 0 {
		return nil, nil
	}
	k, err := ebicscrypto.ParsePKCS8(der)
	if err != nil {
		return nil, errors.Internal("postgres: parse private key: %v", err)
	}
	return k, nil
}

func marshalBankKeys(k connection.BankKeys) (auth, enc []byte, err error) {
	if auth, err = marshalPublicOrNil(k.Authentication); err != nil {
		return
	}
	enc, err = marshalPublicOrNil(k.Encryption)
	return
}

func marshalPublicOrNil(k *rsa.PublicKey) ([]byte, error) {
	if k == nil {
		return nil, nil
	}
	der, err := ebicscrypto.MarshalPublicPKIX(k)
	if err != nil {
		return nil, errors.Internal("postgres: marshal public key: %v", err)
	}
	return der, nil
}

func unmarshalBankKeys(auth, enc []byte) (connection.BankKeys, error) {
	var k connection.BankKeys
	var err error
	if k.Authentication, err = unmarshalPublicOrNil(auth); err != nil {
		return k, err
	}
	k.Encryption, err = unmarshalPublicOrNil(enc)
	return k, err
}

func unmarshalPublicOrNil(der []byte) (*rsa.PublicKey, error) {
	if len(der) == 0 {
		return nil, nil
	}
	k, err := ebicscrypto.ParsePublicPKIX(der)
	if err != nil {
		return nil, errors.Internal("postgres: parse public key: %v", err)
	}
	return k, nil
}
