// pkg/base58/base58.go

// Package base58 реализует кодек Base58 (биткоин-алфавит) для 32-байтных
// Solana-адресов. Арифметика — поразрядное деление/умножение над байтовыми
// массивами, без переполнения машинных слов.
package base58

import "fmt"

// Alphabet — 58 символов биткоин-алфавита (без 0, O, I, l).
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// decodeTable отображает байт символа в его индекс алфавита; 0xFF — невалидный символ.
var decodeTable [256]byte

func init() {
	for i := range decodeTable {
		decodeTable[i] = 0xFF
	}
	for i := 0; i < len(Alphabet); i++ {
		decodeTable[Alphabet[i]] = byte(i)
	}
}

// InvalidCharacterError возвращается из Decode при символе вне алфавита.
type InvalidCharacterError struct {
	Char byte
	Pos  int
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("base58: invalid character %q at position %d", e.Char, e.Pos)
}

// Encode кодирует байты в base58-строку.
// Ведущие нулевые байты отображаются в символы '1' один-к-одному.
func Encode(input []byte) string {
	if len(input) == 0 {
		return ""
	}

	zeros := 0
	for zeros < len(input) && input[zeros] == 0 {
		zeros++
	}

	// Входное число делим на 58 над копией, собирая остатки справа налево.
	data := make([]byte, len(input))
	copy(data, input)

	// log(256)/log(58) ≈ 1.37 символа на байт
	out := make([]byte, len(input)*137/100+1)
	pos := len(out)

	for start := zeros; start < len(data); {
		rem := 0
		for i := start; i < len(data); i++ {
			digit := int(data[i]) + rem<<8
			data[i] = byte(digit / 58)
			rem = digit % 58
		}
		pos--
		out[pos] = Alphabet[rem]
		if data[start] == 0 {
			start++
		}
	}

	for i := 0; i < zeros; i++ {
		pos--
		out[pos] = '1'
	}

	return string(out[pos:])
}

// Decode декодирует base58-строку в байты.
// Ведущие '1' отображаются в нулевые байты один-к-одному.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	zeros := 0
	for zeros < len(input) && input[zeros] == '1' {
		zeros++
	}

	// value = value*58 + index над байтовым массивом (big-endian).
	// log(58)/log(256) ≈ 0.73 байта на символ
	buf := make([]byte, len(input)*733/1000+1)
	length := 0

	for i := zeros; i < len(input); i++ {
		carry := int(decodeTable[input[i]])
		if carry == 0xFF {
			return nil, &InvalidCharacterError{Char: input[i], Pos: i}
		}

		j := len(buf) - 1
		for ; j >= 0 && (carry != 0 || len(buf)-1-j < length); j-- {
			carry += 58 * int(buf[j])
			buf[j] = byte(carry & 0xFF)
			carry >>= 8
		}
		length = len(buf) - 1 - j
	}

	// Минимальное big-endian представление + восстановленные нули.
	start := len(buf) - length
	for start < len(buf) && buf[start] == 0 {
		start++
	}

	result := make([]byte, zeros+(len(buf)-start))
	copy(result[zeros:], buf[start:])
	return result, nil
}

// IsValidPubkey проверяет, что строка — валидный Solana-адрес:
// длина 32..44 символа и ровно 32 байта после декодирования.
func IsValidPubkey(address string) bool {
	// 32 байта кодируются в 32..44 символа base58
	if len(address) < 32 || len(address) > 44 {
		return false
	}
	decoded, err := Decode(address)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
