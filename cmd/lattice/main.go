// Command lattice runs the record store against a chosen backend.
//
// Tables come from a YAML schema file (see schema.Load). Every flag can also
// be set through the environment with the LATTICE_ prefix, for example
// LATTICE_BACKEND=pebble or LATTICE_DYNAMO_TABLE=records. A .env and a
// .env.local in the working directory are loaded first.
//
//	lattice --schema schema.yaml --backend pebble --path ./data \
//	  create users '{"id":"u1","email":"ann@example.com"}'
//	lattice --schema schema.yaml --backend pebble --path ./data \
//	  find users --where '{"role":"admin"}' --include posts
package main

func main() {
	Execute()
}
