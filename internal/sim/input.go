package sim

// Input is the per-tick logical action record for one controlled ship.
// Pure data: it has no effect until Advance applies it. The zero value
// means "no input", which is what a tick gets when packets were lost.
type Input struct {
	Thrust bool    `json:"thrust,omitempty"`
	Turn   float64 `json:"turn,omitempty"`
	Fire   bool    `json:"fire,omitempty"`
}

// Normalized clamps the turn axis into [-1, 1].
func (in Input) Normalized() Input {
	if in.Turn > 1 {
		in.Turn = 1
	} else if in.Turn < -1 {
		in.Turn = -1
	}
	return in
}
