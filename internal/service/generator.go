package service

import (
	"crypto/rand"
	"math/big"
)

// Константы генератора коротких кодов
const (
	codeLength = 8
	// Алфавит совпадает с шаблоном валидации кастомных кодов
	// ([A-Za-z0-9-]), чтобы сгенерированные и пользовательские коды
	// были неотличимы для остальной логики
	codeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-"
)

// generateShortCode генерирует случайный код фиксированной длины,
// равномерно распределённый по алфавиту. Защита от коллизий — повторная
// генерация на уровне сервиса, а не размер энтропии
func generateShortCode() (string, error) {
	result := make([]byte, codeLength)
	for i := 0; i < codeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		result[i] = codeCharset[num.Int64()]
	}
	return string(result), nil
}
