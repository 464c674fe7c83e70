// Copyright 2023-2024, Gridlight Labs
// For license information, see https://github.com/gridlight-io/gridlight/blob/master/LICENSE

// Package erasure implements the column erasure code of the data grid: a
// systematic Reed-Solomon code over GF(2^8). Every extended row index r is
// assigned the evaluation point g^r; original chunks sit at even indices and
// parity chunks at odd indices, so any Rows cells of a column recover the
// whole column via Lagrange interpolation.
package erasure

// GF(2^8) with the irreducible polynomial x^8 + x^4 + x^3 + x^2 + 1 (0x11D)
// and generator 2. Multiplication and division go through log/exp tables.

const gfPoly = 0x11d

var (
	gfExp [510]byte
	gfLog [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfExp[i+255] = byte(x)
		gfLog[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPoly
		}
	}
}

// evalPoint returns the evaluation point assigned to extended row r.
// Rows are bounded so that r < 255 and points stay distinct and non-zero.
func evalPoint(r uint32) byte {
	return gfExp[r%255]
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

func gfDiv(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+255-int(gfLog[b])]
}

// lagrangeEval evaluates at x=at the unique polynomial of degree < len(xs)
// passing through the points (xs[i], ys[i]). Addition and subtraction in
// GF(2^8) are both XOR.
func lagrangeEval(xs, ys []byte, at byte) byte {
	var acc byte
	for j := range xs {
		num, den := byte(1), byte(1)
		for m := range xs {
			if m == j {
				continue
			}
			num = gfMul(num, at^xs[m])
			den = gfMul(den, xs[j]^xs[m])
		}
		acc ^= gfMul(ys[j], gfDiv(num, den))
	}
	return acc
}
