// Command chainscan serves and runs token and wallet scans against the
// gmgn.ai API.
package main

func main() {
	Execute()
}
