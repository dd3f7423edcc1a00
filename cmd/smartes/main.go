// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/smartes/cmd/smartes/cmd"
)

func main() {
	cmd.Execute()
}
