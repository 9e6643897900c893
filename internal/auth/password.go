package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword возвращает bcrypt-хеш пароля (DefaultCost)
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword сравнивает пароль с bcrypt-хешем
func CheckPassword(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AdminCredentials единственная учётная запись админ API
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Enabled сообщает, настроен ли вход
func (a AdminCredentials) Enabled() bool {
	return a.Username != "" && a.PasswordHash != ""
}

// Check проверяет пару логин/пароль
func (a AdminCredentials) Check(username, password string) bool {
	if !a.Enabled() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(a.Username), []byte(username)) == 1
	return CheckPassword(a.PasswordHash, password) && userOK
}
