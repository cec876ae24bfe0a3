package zmq

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"

	"github.com/go-zeromq/zmq4"
	json "github.com/json-iterator/go"

	"CipherDB/internal/application/service"
	"CipherDB/internal/domain"
	"CipherDB/internal/platform/config"
)

// High throughput ZMQ API using multiple REP sockets
type HighPerformanceZmqApi struct {
	sockets    []zmq4.Socket
	config     config.Config
	services   *Services
	ctx        context.Context
	cancel     context.CancelFunc
	workerPool chan Job
}

type Job struct {
	Request  *ApiRequest
	Response chan<- ApiResponse
	SocketID int
}

type Services struct {
	open    *service.OpenDatabaseService
	close   *service.CloseDatabaseService
	query   *service.RawQueryService
	execute *service.ExecuteStatementService
}

const (
	OPEN    = "OPEN"
	CLOSE   = "CLOSE"
	QUERY   = "QUERY"
	EXECUTE = "EXECUTE"
)

var flagNames = map[string]domain.OpenFlags{
	"OPEN_READWRITE":             domain.OpenReadWrite,
	"OPEN_READONLY":              domain.OpenReadOnly,
	"CREATE_IF_NECESSARY":        domain.CreateIfNecessary,
	"NO_LOCALIZED_COLLATORS":     domain.NoLocalizedCollators,
	"ENABLE_WRITE_AHEAD_LOGGING": domain.EnableWriteAheadLogging,
}

func NewZmqApi(open *service.OpenDatabaseService, close *service.CloseDatabaseService,
	query *service.RawQueryService, execute *service.ExecuteStatementService,
	conf config.Config) *HighPerformanceZmqApi {

	ctx, cancel := context.WithCancel(context.Background())

	// Multiple REP sockets share one endpoint for throughput
	numSockets := runtime.NumCPU()
	if numSockets > 16 {
		numSockets = 16
	}

	sockets := make([]zmq4.Socket, numSockets)
	for i := range sockets {
		sockets[i] = zmq4.NewRep(ctx)
	}

	return &HighPerformanceZmqApi{
		sockets: sockets,
		config:  conf,
		services: &Services{
			open:    open,
			close:   close,
			query:   query,
			execute: execute,
		},
		ctx:        ctx,
		cancel:     cancel,
		workerPool: make(chan Job, 50000),
	}
}

func (z *HighPerformanceZmqApi) Listen() {
	address := fmt.Sprintf("tcp://*:%d", z.config.ServerPort+1000)

	for i, socket := range z.sockets {
		if err := socket.Listen(address); err != nil {
			log.Printf("Error binding socket %d: %v", i, err)
			continue
		}
	}

	numWorkers := runtime.NumCPU() * 4
	for i := 0; i < numWorkers; i++ {
		go z.workerRoutine(i)
	}

	log.Printf("High-performance ZMQ API listening on %s with %d sockets and %d workers",
		address, len(z.sockets), numWorkers)

	for i, socket := range z.sockets {
		go z.socketListener(i, socket)
	}

	<-z.ctx.Done()
	log.Println("Shutting down high-performance ZMQ API...")
}

func (z *HighPerformanceZmqApi) socketListener(socketID int, socket zmq4.Socket) {
	defer log.Printf("Socket listener %d shutdown", socketID)

	for {
		select {
		case <-z.ctx.Done():
			return
		default:
			msg, err := socket.Recv()
			if err != nil {
				if errors.Is(err, zmq4.ErrClosedConn) {
					return
				}
				log.Printf("Socket %d recv error: %v", socketID, err)
				continue
			}

			var req ApiRequest
			if err := json.Unmarshal(msg.Bytes(), &req); err != nil {
				log.Printf("Socket %d unmarshal error: %v", socketID, err)
				z.sendErrorResponse(socket, "malformed request")
				continue
			}

			respChan := make(chan ApiResponse, 1)
			job := Job{
				Request:  &req,
				Response: respChan,
				SocketID: socketID,
			}

			select {
			case z.workerPool <- job:
				response := <-respChan
				responseMsg := z.marshal(response)
				if err := socket.Send(responseMsg); err != nil {
					log.Printf("Socket %d send error: %v", socketID, err)
				}
			case <-z.ctx.Done():
				return
			default:
				// Pool full, process inline
				response := z.processRequest(&req)
				responseMsg := z.marshal(response)
				if err := socket.Send(responseMsg); err != nil {
					log.Printf("Socket %d send error: %v", socketID, err)
				}
			}
		}
	}
}

func (z *HighPerformanceZmqApi) workerRoutine(id int) {
	defer log.Printf("Worker %d shutdown complete", id)

	for {
		select {
		case job := <-z.workerPool:
			response := z.processRequest(job.Request)

			select {
			case job.Response <- response:
			default:
				log.Printf("Worker %d: failed to send response", id)
			}

		case <-z.ctx.Done():
			return
		}
	}
}

func (z *HighPerformanceZmqApi) processRequest(req *ApiRequest) ApiResponse {
	switch req.Action {
	case OPEN:
		flags, ok := parseFlags(req.Flags)
		if !ok {
			return ApiResponse{Error: "unknown open flag"}
		}
		result, err := z.services.open.Execute(service.OpenDatabaseCommand{
			Path:       req.Path,
			Passphrase: req.Passphrase,
			Flags:      flags,
		})
		if err != nil {
			return ApiResponse{Error: err.Error()}
		}
		return ApiResponse{Success: true, HandleID: result.HandleID}

	case CLOSE:
		if _, err := z.services.close.Execute(service.CloseDatabaseCommand{
			HandleID: req.HandleID,
		}); err != nil {
			return ApiResponse{Error: err.Error()}
		}
		return ApiResponse{Success: true}

	case QUERY:
		result, err := z.services.query.Execute(z.ctx, service.RawQueryCommand{
			HandleID: req.HandleID,
			SQL:      req.SQL,
			MaxRows:  req.MaxRows,
		})
		if err != nil {
			return ApiResponse{Error: err.Error()}
		}
		return ApiResponse{
			Success: true,
			Columns: result.Columns,
			Rows:    result.Rows,
		}

	case EXECUTE:
		if _, err := z.services.execute.Execute(z.ctx, service.ExecuteStatementCommand{
			HandleID: req.HandleID,
			SQL:      req.SQL,
		}); err != nil {
			return ApiResponse{Error: err.Error()}
		}
		return ApiResponse{Success: true}

	default:
		log.Printf("Unknown action: %s", req.Action)
		return ApiResponse{Error: "unknown action"}
	}
}

func parseFlags(names []string) (domain.OpenFlags, bool) {
	var flags domain.OpenFlags
	for _, name := range names {
		f, ok := flagNames[name]
		if !ok {
			return 0, false
		}
		flags |= f
	}
	return flags, true
}

func (z *HighPerformanceZmqApi) sendErrorResponse(socket zmq4.Socket, detail string) {
	errorMsg := z.marshal(ApiResponse{Error: detail})
	if err := socket.Send(errorMsg); err != nil {
		log.Printf("Error sending error response: %v", err)
	}
}

func (z *HighPerformanceZmqApi) marshal(response ApiResponse) zmq4.Msg {
	payload, err := json.Marshal(response)
	if err != nil {
		log.Printf("Error marshalling response: %v", err)
		payload = []byte(`{"success":false}`)
	}
	return zmq4.NewMsg(payload)
}

func (z *HighPerformanceZmqApi) Close() error {
	log.Println("Initiating high-performance ZMQ API shutdown...")

	z.cancel()

	var lastErr error
	for i, socket := range z.sockets {
		if socket != nil {
			if err := socket.Close(); err != nil {
				log.Printf("Error closing socket %d: %v", i, err)
				lastErr = err
			}
		}
	}

	log.Println("High-performance ZMQ API shutdown complete")
	return lastErr
}
