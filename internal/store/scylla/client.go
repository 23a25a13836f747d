package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"campus-auth/internal/config"
	"campus-auth/internal/util"
)

// PreparedStatements holds the statements the credential store executes.
type PreparedStatements struct {
	InsertCredential  *gocql.Query
	InsertEmailToUser *gocql.Query
	SelectCredential  *gocql.Query
	SelectEmailToUser *gocql.Query
	UpdateCredential  *gocql.Query
}

type Client struct {
	Session      *gocql.Session
	cfg          *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.Mutex
	isPrepared   bool
	logger       *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	sc := cfg.Scylla

	cluster := gocql.NewCluster(sc.Nodes...)
	cluster.Keyspace = sc.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 util.GetEnv("SCYLLA_CA_FILE", "/app/certs/ca.pem"),
			CertPath:               util.GetEnv("SCYLLA_CERT_FILE", "/app/certs/server.pem"),
			KeyPath:                util.GetEnv("SCYLLA_KEY_FILE", "/app/certs/server.key"),
			EnableHostVerification: true,
		}
	}

	if sc.Username != "" && sc.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: sc.Username,
			Password: sc.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	c := &Client{Session: session, cfg: &sc, logger: logger}
	if err := c.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.Info("ScyllaDB client initialized",
		zap.Strings("nodes", sc.Nodes),
		util.String("keyspace", sc.Keyspace))

	return c, nil
}

func (c *Client) prepareStatements() error {
	c.prepareMutex.Lock()
	defer c.prepareMutex.Unlock()

	if c.isPrepared {
		return nil
	}

	p := &PreparedStatements{}

	p.InsertCredential = c.Session.Query(`
		INSERT INTO credentials (
			bucket, email_hash, user_id, email_encrypted, username,
			password_hash, verified, otp, otp_expiry, reset_otp, reset_expiry,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	p.InsertEmailToUser = c.Session.Query(`
		INSERT INTO email_to_user (email_hash, bucket, user_id, created_at)
		VALUES (?, ?, ?, ?)`)

	p.SelectCredential = c.Session.Query(`
		SELECT user_id, email_encrypted, username, password_hash, verified,
			otp, otp_expiry, reset_otp, reset_expiry, created_at, updated_at
		FROM credentials WHERE bucket = ? AND email_hash = ?`)

	p.SelectEmailToUser = c.Session.Query(`
		SELECT bucket, user_id FROM email_to_user WHERE email_hash = ?`)

	p.UpdateCredential = c.Session.Query(`
		UPDATE credentials SET username = ?, password_hash = ?, verified = ?,
			otp = ?, otp_expiry = ?, reset_otp = ?, reset_expiry = ?, updated_at = ?
		WHERE bucket = ? AND email_hash = ?`)

	c.Prepared = p
	c.isPrepared = true
	return nil
}

func (c *Client) Batch(typ gocql.BatchType) *gocql.Batch {
	return c.Session.NewBatch(typ)
}

func (c *Client) ExecuteBatch(batch *gocql.Batch) error {
	return c.Session.ExecuteBatch(batch)
}

func (c *Client) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := c.Session.Query(`SELECT cluster_name FROM system.local`).
		WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.Session != nil {
		c.Session.Close()
		c.logger.Info("ScyllaDB client closed")
	}
}
