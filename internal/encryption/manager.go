package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"botops-console/internal/config"
	"botops-console/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// EncryptedField is the serialized envelope stored alongside a record:
// AES-GCM ciphertext plus the KMS-wrapped data key that produced it.
type EncryptedField struct {
	Ciphertext   string    `json:"ciphertext"`
	EncryptedDEK string    `json:"encrypted_dek"`
	KeyID        string    `json:"key_id"`
	Version      string    `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// EncryptionManager envelope-encrypts sensitive lead contact fields. With
// KMS disabled (development) data keys are generated locally and stored
// base64-encoded in place of the wrapped key.
type EncryptionManager struct {
	kmsClient *kms.Client
	config    *config.Config
	keyCache  sync.Map // encrypted DEK -> plaintext DEK
}

func NewEncryptionManager(cfg *config.Config, kmsClient *kms.Client) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

type dataKey struct {
	plaintext  []byte
	ciphertext []byte
	keyID      string
}

func (em *EncryptionManager) generateDataKey(ctx context.Context) (*dataKey, error) {
	if !em.config.KMS.Enabled || em.kmsClient == nil {
		return em.generateLocalKey()
	}

	input := &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.config.KMS.KeyID),
		KeySpec: types.DataKeySpecAes256,
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &dataKey{
		plaintext:  result.Plaintext,
		ciphertext: result.CiphertextBlob,
		keyID:      em.config.KMS.KeyID,
	}, nil
}

func (em *EncryptionManager) generateLocalKey() (*dataKey, error) {
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate local encryption key: %w", err)
	}

	// In development the "wrapped" key is just the base64 of the plaintext
	return &dataKey{
		plaintext:  key,
		ciphertext: []byte(base64.StdEncoding.EncodeToString(key)),
		keyID:      uuid.New().String(),
	}, nil
}

// EncryptField envelope-encrypts a plaintext value and returns the
// serialized envelope for storage.
func (em *EncryptionManager) EncryptField(ctx context.Context, plaintext string) ([]byte, string, error) {
	dk, err := em.generateDataKey(ctx)
	if err != nil {
		return nil, "", err
	}

	block, err := aes.NewCipher(dk.plaintext)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	field := &EncryptedField{
		Ciphertext:   base64.StdEncoding.EncodeToString(sealed),
		EncryptedDEK: base64.StdEncoding.EncodeToString(dk.ciphertext),
		KeyID:        dk.keyID,
		Version:      "v1",
		CreatedAt:    time.Now().UTC(),
	}

	em.keyCache.Store(field.EncryptedDEK, dk.plaintext)

	blob, err := json.Marshal(field)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	return blob, dk.keyID, nil
}

// DecryptField reverses EncryptField.
func (em *EncryptionManager) DecryptField(ctx context.Context, blob []byte) (string, error) {
	var field EncryptedField
	if err := json.Unmarshal(blob, &field); err != nil {
		return "", fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}

	if cached, ok := em.keyCache.Load(field.EncryptedDEK); ok {
		return em.decryptWithKey(field.Ciphertext, cached.([]byte))
	}

	var plaintextDEK []byte
	if em.config.KMS.Enabled && em.kmsClient != nil {
		ciphertextBlob, err := base64.StdEncoding.DecodeString(field.EncryptedDEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
		}

		result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: ciphertextBlob,
		})
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	} else {
		var err error
		plaintextDEK, err = base64.StdEncoding.DecodeString(field.EncryptedDEK)
		if err != nil {
			return "", fmt.Errorf("%w: invalid local DEK", ErrDecryptionFailed)
		}
	}

	em.keyCache.Store(field.EncryptedDEK, plaintextDEK)

	return em.decryptWithKey(field.Ciphertext, plaintextDEK)
}

func (em *EncryptionManager) decryptWithKey(encryptedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// ClearCache drops cached plaintext DEKs
func (em *EncryptionManager) ClearCache() {
	em.keyCache.Range(func(key, value interface{}) bool {
		em.keyCache.Delete(key)
		return true
	})
	util.Debug("Encryption DEK cache cleared", zap.Bool("kms_enabled", em.config.KMS.Enabled))
}
