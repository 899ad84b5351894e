package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const sealInfo = "pgwdash auth token v1"

// ErrSealedCorrupt 密文无法解开（密钥变更或数据损坏）
var ErrSealedCorrupt = errors.New("令牌密文无效")

// Sealer 对落盘的令牌做对称加密，密钥由 TOKEN_SECRET 经 HKDF 派生
type Sealer struct {
	key [32]byte
}

// NewSealer 根据密钥字符串创建 Sealer
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("token secret 不能为空")
	}
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("派生令牌密钥失败: %w", err)
	}
	return s, nil
}

// Seal 加密，输出 base64(nonce || box)
func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open 解密
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrSealedCorrupt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedCorrupt
	}
	return string(plain), nil
}
