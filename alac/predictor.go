package alac

// Orders with a dedicated reconstruction path.
const (
	predictorOrderPassthrough = 0
	predictorOrderDifference  = 31
)

// Predict reconstructs samples from residuals with the adaptive FIR
// predictor. coefs holds the frame's coefficient table and is adapted in
// place; its length is the predictor order.
//
// len(out) must be at least len(residuals).
func Predict(residuals, out []int32, sampleSize int, coefs []int16, quant uint) {
	n := len(residuals)
	if n == 0 {
		return
	}
	order := len(coefs)

	out[0] = residuals[0]

	switch order {
	case predictorOrderPassthrough:
		copy(out[1:n], residuals[1:])
		return
	case predictorOrderDifference:
		for i := 0; i < n-1; i++ {
			out[i+1] = signExtend(out[i]+residuals[i+1], sampleSize)
		}
		return
	}

	// warm-up
	for i := 0; i < order && i+1 < n; i++ {
		out[i+1] = signExtend(out[i]+residuals[i+1], sampleSize)
	}

	var round int32
	if quant > 0 {
		round = 1 << (quant - 1)
	}

	for i := order + 1; i < n; i++ {
		base := i - order - 1
		hist := out[base : base+order+1]
		residual := residuals[i]

		var sum int32
		for j := 0; j < order; j++ {
			sum += (hist[order-j] - hist[0]) * int32(coefs[j])
		}

		predicted := (round+sum)>>quant + hist[0]
		out[i] = signExtend(predicted+residual, sampleSize)

		switch {
		case residual > 0:
			for tap := order - 1; tap >= 0 && residual > 0; tap-- {
				diff := hist[0] - out[base+order-tap]
				sign := signOf(diff)
				coefs[tap] -= int16(sign)
				diff *= sign
				residual -= (diff >> quant) * int32(order-tap)
			}
		case residual < 0:
			for tap := order - 1; tap >= 0 && residual < 0; tap-- {
				diff := hist[0] - out[base+order-tap]
				sign := -signOf(diff)
				coefs[tap] -= int16(sign)
				diff *= sign
				residual -= (diff >> quant) * int32(order-tap)
			}
		}
	}
}

func signOf(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
