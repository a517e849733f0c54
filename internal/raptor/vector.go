package raptor

import "github.com/pgvector/pgvector-go"

func toVector(v []float32) pgvector.Vector {
	return pgvector.NewVector(v)
}
