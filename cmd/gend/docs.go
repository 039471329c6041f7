package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           gend API
// @version         1.0
// @description     HTTP API for multimodal generation dispatch: engine routing, sessions, and artifact downloads.
//
// @contact.name   gend maintainers
// @contact.url    https://github.com/your-org/gend
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
