package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Параметры вывода ключа из парольной фразы.
// Соль фиксирована на уровне приложения: она защищает от радужных таблиц,
// а не от перебора конкретной фразы (для этого служат итерации).
var keyDerivationSalt = []byte("spreadpilot.follower-credentials.v1")

const keyDerivationIters = 64_000

// DeriveKey выводит 32-байтовый ключ AES-256 из произвольной парольной фразы
// через PBKDF2-SHA256. Детерминирован: одна фраза всегда даёт один ключ.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), keyDerivationSalt, keyDerivationIters, 32, sha256.New)
}

// GenerateKey генерирует криптографически стойкий случайный ключ (32 байта)
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
