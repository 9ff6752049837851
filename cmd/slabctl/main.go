// Command slabctl runs workloads against the graph record store and reports on
// its memory tiers.
package main

func main() {
	execute()
}
