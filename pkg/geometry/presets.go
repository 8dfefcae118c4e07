package geometry

import "math"

// Tigerbot chassis dimensions.
const (
	TigerbotWheelDiameterMM float64 = 70
	TigerbotWheelCircumMM           = TigerbotWheelDiameterMM * math.Pi

	TigerbotWidthMM                    = 170
	TigerbotFrontBackWheelCentreDistMM = 190
)

var (
	TigerbotCentreToWheelCentre  = math.Sqrt(math.Pow(TigerbotWidthMM/2, 2) + math.Pow(TigerbotFrontBackWheelCentreDistMM/2, 2))
	TigerbotWheelTurningCircleMM = math.Pi * TigerbotCentreToWheelCentre * 2
)

// TigerbotWheels returns the four wheels of the Tigerbot skid-steer chassis,
// front-left, front-right, rear-left, rear-right. The right-hand motors are
// mounted mirrored.
func TigerbotWheels() []Wheel {
	const (
		halfTrack = TigerbotWidthMM / 2
		halfBase  = TigerbotFrontBackWheelCentreDistMM / 2
	)
	return []Wheel{
		{Diameter: TigerbotWheelDiameterMM, X: halfBase, Offset: halfTrack, GearRatio: 1},
		{Diameter: TigerbotWheelDiameterMM, X: halfBase, Offset: -halfTrack, GearRatio: -1},
		{Diameter: TigerbotWheelDiameterMM, X: -halfBase, Offset: halfTrack, GearRatio: 1},
		{Diameter: TigerbotWheelDiameterMM, X: -halfBase, Offset: -halfTrack, GearRatio: -1},
	}
}

// DifferentialPair returns a left and a right wheel, trackWidth apart.
func DifferentialPair(diameter, trackWidth float64) []Wheel {
	return []Wheel{
		NewWheel(diameter, trackWidth/2, 1),
		NewWheel(diameter, -trackWidth/2, 1),
	}
}

// OmniTriangle returns three omni wheels 120° apart at the given radius.
func OmniTriangle(diameter, radius float64) []Wheel {
	return []Wheel{
		PolarWheel(diameter, 0, radius, 1),
		PolarWheel(diameter, 120, radius, 1),
		PolarWheel(diameter, 240, radius, 1),
	}
}
