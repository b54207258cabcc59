/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/VallejoLeonardo/alumnosb/cmd"

func main() {
	cmd.Execute()
}
