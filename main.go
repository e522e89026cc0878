package main

import (
	"os"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
