package sourcemap

import (
	"fmt"
	"strings"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Index = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		t[base64Alphabet[i]] = int8(i)
	}
	return
}()

const (
	vlqShift    = 5
	vlqContinue = 1 << vlqShift
	vlqMask     = vlqContinue - 1
)

func decodeVLQ(s string, i int) (value, next int, err error) {
	var result, shift int
	for {
		if i >= len(s) {
			return 0, i, fmt.Errorf("unterminated VLQ value")
		}
		digit := base64Index[s[i]]
		if digit < 0 {
			return 0, i, fmt.Errorf("invalid base64 character %q", s[i])
		}
		i++
		result += int(digit&vlqMask) << shift
		shift += vlqShift
		if digit&vlqContinue == 0 {
			break
		}
	}

	value = result >> 1
	if result&1 == 1 {
		value = -value
	}
	return value, i, nil
}

func encodeVLQ(b *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}
	for {
		digit := v & vlqMask
		v >>= vlqShift
		if v > 0 {
			digit |= vlqContinue
		}
		b.WriteByte(base64Alphabet[digit])
		if v == 0 {
			return
		}
	}
}
