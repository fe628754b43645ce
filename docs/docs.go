package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Bookleaf Author Tracker",
    "description": "Author reconciliation, consultant assignment, help desk ticket sync and booking links",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/healthz": {
      "get": {
        "tags": [
          "health"
        ],
        "summary": "Health check",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/import/payments": {
      "post": {
        "tags": [
          "import"
        ],
        "summary": "Import a payment export",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/import/tracker": {
      "post": {
        "tags": [
          "import"
        ],
        "summary": "Import a consultant tracker sheet",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/authors": {
      "get": {
        "tags": [
          "authors"
        ],
        "summary": "List authors",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/authors/auto-assign": {
      "post": {
        "tags": [
          "authors"
        ],
        "summary": "Round-robin every assigned author across active consultants",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/authors/clear": {
      "post": {
        "tags": [
          "authors"
        ],
        "summary": "Clear every consultant assignment",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/authors/{email}": {
      "patch": {
        "tags": [
          "authors"
        ],
        "summary": "Live edit of one author",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/overrides/{email}": {
      "get": {
        "tags": [
          "authors"
        ],
        "summary": "Override record for one author",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets/sync": {
      "post": {
        "tags": [
          "tickets"
        ],
        "summary": "Fetch tickets from the help desk",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets": {
      "get": {
        "tags": [
          "tickets"
        ],
        "summary": "Cached tickets joined with authors",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets/status": {
      "get": {
        "tags": [
          "tickets"
        ],
        "summary": "Ticket sync status",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets/push": {
      "post": {
        "tags": [
          "tickets"
        ],
        "summary": "Push every needed reassignment to the help desk",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets/{id}/push": {
      "post": {
        "tags": [
          "tickets"
        ],
        "summary": "Push one ticket's reassignment",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/tickets/auto-refresh": {
      "post": {
        "tags": [
          "tickets"
        ],
        "summary": "Turn timed ticket refresh on or off",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/bookings/link": {
      "get": {
        "tags": [
          "bookings"
        ],
        "summary": "Booking link for an author",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/bookings/link/validate": {
      "get": {
        "tags": [
          "bookings"
        ],
        "summary": "Validate a booking link",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/bookings": {
      "post": {
        "tags": [
          "bookings"
        ],
        "summary": "Book a session with the assigned consultant",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/bookings/current": {
      "get": {
        "tags": [
          "bookings"
        ],
        "summary": "Current booking of an author",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/bookings/{id}/status": {
      "post": {
        "tags": [
          "bookings"
        ],
        "summary": "Complete or cancel a booking",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/webhooks/payments": {
      "post": {
        "tags": [
          "webhooks"
        ],
        "summary": "Payment gateway webhook",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/webhooks/payments/recent": {
      "get": {
        "tags": [
          "webhooks"
        ],
        "summary": "Recent payment webhook outcomes",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    },
    "/api/webhooks/tickets": {
      "post": {
        "tags": [
          "webhooks"
        ],
        "summary": "Help desk ticket webhook",
        "produces": [
          "application/json"
        ],
        "responses": {
          "200": {
            "description": "OK"
          }
        }
      }
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
