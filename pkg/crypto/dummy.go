package crypto

import "encoding/binary"

// xorWithTag is the reversible, deterministic transform backing
// dummySuite: repeat-XOR the key over the plaintext and prepend a
// length tag so xorOpenTag can detect truncation or a length change
// deterministically, without any randomness getting in the way of
// test assertions. xorOpenTag does not detect a wrong key: it returns
// the body XORed with whatever key it is given.
func xorWithTag(key, plaintext []byte) []byte {
	out := make([]byte, 4+len(plaintext))
	binary.BigEndian.PutUint32(out[:4], uint32(len(plaintext)))
	xorInto(out[4:], key, plaintext)
	return out
}

func xorOpenTag(key, tagged []byte) ([]byte, error) {
	if len(tagged) < 4 {
		return nil, ErrCryptoFailed
	}
	n := binary.BigEndian.Uint32(tagged[:4])
	body := tagged[4:]
	if int(n) != len(body) {
		return nil, ErrCryptoFailed
	}
	out := make([]byte, len(body))
	xorInto(out, key, body)
	return out, nil
}

func xorInto(dst, key, src []byte) {
	if len(key) == 0 {
		copy(dst, src)
		return
	}
	for i := range src {
		dst[i] = src[i] ^ key[i%len(key)]
	}
}
