// +build gofuzz

package lexer

import (
	"fmt"
)

func Fuzz(data []byte) int {
	l := Lexer{}
	metric, err := l.Run(data, "")
	if err != nil {
		if metric != nil {
			panic(fmt.Errorf("metric %+v returned with error %v", metric, err))
		}
		return 0
	}
	if metric.Name == "" {
		panic(fmt.Errorf("metric with empty name: %+v", metric))
	}
	return 1
}
