package room

import (
	crand "crypto/rand"
	"math/big"
	"math/rand/v2"
)

const (
	// CodeLength 房间号长度
	CodeLength = 6
	// CodeChars 房间号字符集，去掉了容易混淆的字符
	CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// GenerateCode creates a random room code.
func GenerateCode() string {
	code := make([]byte, CodeLength)
	for i := range CodeLength {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			code[i] = CodeChars[rand.IntN(len(CodeChars))]
			continue
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code)
}
