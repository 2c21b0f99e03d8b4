package decode

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Strategy selects how a grayscale image is binarized before a decode
// attempt. Strategies are tried in declaration order.
type Strategy int

const (
	StrategyOtsu Strategy = iota
	StrategyAdaptiveGaussian
	StrategyAdaptiveMean
	StrategyFixed
)

func (s Strategy) String() string {
	switch s {
	case StrategyOtsu:
		return "otsu"
	case StrategyAdaptiveGaussian:
		return "adaptive_gaussian"
	case StrategyAdaptiveMean:
		return "adaptive_mean"
	case StrategyFixed:
		return "fixed"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Rotation is a clockwise rotation in degrees, restricted to exact
// quarter turns so no interpolation is involved.
type Rotation int

// Attempt identifies one cell of the strategy × rotation matrix.
type Attempt struct {
	Strategy Strategy
	Rotation Rotation
}

func (a Attempt) String() string {
	return fmt.Sprintf("%s_rot%d", a.Strategy, a.Rotation)
}

const (
	adaptiveBlockSize = 11
	adaptiveConstant  = 2
	fixedThreshold    = 128
)

var (
	rotations = []Rotation{0, 90, 180, 270}

	// directStrategies covers the full-frame sweep; croppedStrategies is
	// the adaptive-only subset retried on a segmented label region.
	directStrategies  = []Strategy{StrategyOtsu, StrategyAdaptiveGaussian, StrategyAdaptiveMean, StrategyFixed}
	croppedStrategies = []Strategy{StrategyAdaptiveGaussian, StrategyAdaptiveMean}
)

// binarize applies the strategy to a grayscale image and returns a new
// Mat the caller must Close.
func binarize(s Strategy, gray gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	switch s {
	case StrategyOtsu:
		gocv.Threshold(gray, &dst, 0, 255, gocv.ThresholdBinary+gocv.ThresholdOtsu)
	case StrategyAdaptiveGaussian:
		gocv.AdaptiveThreshold(gray, &dst, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, adaptiveBlockSize, adaptiveConstant)
	case StrategyAdaptiveMean:
		gocv.AdaptiveThreshold(gray, &dst, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, adaptiveBlockSize, adaptiveConstant)
	default:
		gocv.Threshold(gray, &dst, fixedThreshold, 255, gocv.ThresholdBinary)
	}
	return dst
}

// rotateExact returns a rotated copy using lossless quarter-turn
// transposes. The caller must Close the result.
func rotateExact(src gocv.Mat, deg Rotation) gocv.Mat {
	dst := gocv.NewMat()
	switch deg {
	case 90:
		gocv.Rotate(src, &dst, gocv.Rotate90Clockwise)
	case 180:
		gocv.Rotate(src, &dst, gocv.Rotate180Clockwise)
	case 270:
		gocv.Rotate(src, &dst, gocv.Rotate90CounterClockwise)
	default:
		dst.Close()
		return src.Clone()
	}
	return dst
}
