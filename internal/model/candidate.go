package model

// DetectionParams is the parameter quadruple the upstream detector was run
// with. DetectionLevel and TimeWindow are carried into the results log;
// TimeWindow also names the per-source output directory.
type DetectionParams struct {
	DetectionLevel float64
	TimeWindow     float64
	GoodTimeRatio  float64
	BoxSize        int
}

// CandidateSource is one detected variable source inside an observation,
// read back from the detection-stage region file.
type CandidateSource struct {
	ID string

	// Sky position in decimal degrees.
	RA  float64
	Dec float64

	// Detection radius in raw detector pixels.
	Radius float64
}

// ExtractionRegion is an algebraic circular region in sky pixel
// coordinates, consumable by the toolkit's selection expressions.
type ExtractionRegion struct {
	X      float64
	Y      float64
	Radius float64
}
