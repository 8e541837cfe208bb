package fixtures

import (
	"fmt"

	"github.com/nimasrn/train-reservation/internal/model"
)

const (
	PrincipalAlice = "alice"
	PrincipalBob   = "bob"
)

var (
	DelhiMumbai = model.TrainCreateRequest{
		Number:      "12951",
		Source:      "Delhi",
		Destination: "Mumbai",
		TotalSeats:  3,
	}

	MumbaiDelhi = model.TrainCreateRequest{
		Number:      "12952",
		Source:      "Mumbai",
		Destination: "Delhi",
		TotalSeats:  3,
	}

	SoldOut = model.TrainCreateRequest{
		Number:      "00000",
		Source:      "Delhi",
		Destination: "Mumbai",
		TotalSeats:  0,
	}
)

func NewTrainCreateRequest(number, source, destination string, seats int) model.TrainCreateRequest {
	return model.TrainCreateRequest{
		Number:      number,
		Source:      source,
		Destination: destination,
		TotalSeats:  seats,
	}
}

// Principals returns n distinct principal ids.
func Principals(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("principal-%03d", i)
	}
	return out
}
