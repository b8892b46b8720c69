package main

import (
	"github.com/decentium/decentium-go/cmd/decentium"
)

func main() {
	decentium.Execute()
}
