package scylla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campus-auth/internal/bucketing"
	"campus-auth/internal/encryption"
	"campus-auth/internal/model"
	"campus-auth/internal/store"
	"campus-auth/internal/util"
)

// CredentialStore is the scylla-backed store.UserStore. Rows are partitioned
// by (bucket, email_hash); the raw address is held only as an encrypted
// envelope, and every lookup goes through the email hash.
type CredentialStore struct {
	client    *Client
	buckets   *bucketing.Manager
	encryptor *encryption.Manager
	logger    *zap.Logger
}

func NewCredentialStore(client *Client, buckets *bucketing.Manager, encryptor *encryption.Manager, logger *zap.Logger) *CredentialStore {
	return &CredentialStore{
		client:    client,
		buckets:   buckets,
		encryptor: encryptor,
		logger:    logger,
	}
}

func (s *CredentialStore) locate(email string) (int, string) {
	hash := util.HashEmail(email)
	return s.buckets.UserBucket(hash), hash
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*model.UserCredential, error) {
	bucket, hash := s.locate(email)

	rec := &model.UserCredential{Email: email}
	var (
		emailEncrypted         string
		otp, resetOTP          string
		otpExpiry, resetExpiry time.Time
	)

	err := s.client.Prepared.SelectCredential.WithContext(ctx).Bind(bucket, hash).Scan(
		&rec.ID, &emailEncrypted, &rec.Username, &rec.PasswordHash, &rec.Verified,
		&otp, &otpExpiry, &resetOTP, &resetExpiry, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	if otp != "" {
		rec.OTP = &otp
		e := otpExpiry
		rec.OTPExpiry = &e
	}
	if resetOTP != "" {
		rec.PasswordResetOTP = &resetOTP
		e := resetExpiry
		rec.PasswordResetExpiry = &e
	}
	return rec, nil
}

func (s *CredentialStore) Create(ctx context.Context, user *model.UserCredential) error {
	bucket, hash := s.locate(user.Email)

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	emailEncrypted, err := s.encryptor.EncryptToString(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("failed to encrypt email: %w", err)
	}

	// credential row and reverse index land together or not at all
	batch := s.client.Batch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(s.client.Prepared.InsertCredential.Statement(),
		bucket, hash, user.ID, emailEncrypted, user.Username,
		user.PasswordHash, user.Verified,
		deref(user.OTP), derefTime(user.OTPExpiry),
		deref(user.PasswordResetOTP), derefTime(user.PasswordResetExpiry),
		user.CreatedAt, user.UpdatedAt)
	batch.Query(s.client.Prepared.InsertEmailToUser.Statement(),
		hash, bucket, user.ID, user.CreatedAt)

	if err := s.client.ExecuteBatch(batch); err != nil {
		s.logger.Error("failed to create credential",
			util.String("email_hash", hash),
			util.ErrorField(err))
		return fmt.Errorf("failed to create credential: %w", err)
	}

	s.logger.Info("credential created",
		util.String("user_id", user.ID),
		util.String("email_hash", hash),
		util.Int("bucket", bucket))
	return nil
}

func (s *CredentialStore) UpdateByEmail(ctx context.Context, email string, upd store.UserUpdate) error {
	bucket, hash := s.locate(email)

	rec, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	upd.Apply(rec)

	err = s.client.Prepared.UpdateCredential.WithContext(ctx).Bind(
		rec.Username, rec.PasswordHash, rec.Verified,
		deref(rec.OTP), derefTime(rec.OTPExpiry),
		deref(rec.PasswordResetOTP), derefTime(rec.PasswordResetExpiry),
		rec.UpdatedAt, bucket, hash).Exec()
	if err != nil {
		s.logger.Error("failed to update credential",
			util.String("email_hash", hash),
			util.ErrorField(err))
		return fmt.Errorf("failed to update credential: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var _ store.UserStore = (*CredentialStore)(nil)
