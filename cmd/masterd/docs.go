package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           masterd API
// @version         1.0
// @description     HTTP API for audio mastering runs, live status streams and previews.
//
// @contact.name   masterd maintainers
// @contact.url    https://github.com/your-org/masterd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
