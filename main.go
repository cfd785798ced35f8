package main

import (
	"github.com/jonadableite/WhatLead-sub000/cmd"
)

func main() {
	cmd.Execute()
}
