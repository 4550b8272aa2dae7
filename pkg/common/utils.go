// Copyright (c) 2023 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package common

import (
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

// GenerateRandomInt generate a random int that is not determined
func GenerateRandomInt() int {
	source := rand.NewSource(time.Now().UnixNano())
	random := rand.New(source)

	return random.Intn(10000)
}

// MakeTraceID create new traceID
// example: cycle_1234
func MakeTraceID(identifiers ...string) string {
	var b strings.Builder
	for _, i := range identifiers {
		b.WriteString(i)
		b.WriteString("_")
	}
	b.WriteString(strconv.Itoa(GenerateRandomInt()))

	return b.String()
}

// GetEnvFloat reads a float variable, falling back on parse errors.
func GetEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}

	return val
}
