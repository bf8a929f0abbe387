package pool

import (
	"sync"
	"time"
)

// Pool es un pool de workers acotado para tareas fire-and-forget (publicación
// de eventos). En el shutdown se drenan las tareas en curso con una espera
// máxima; pasado el plazo se deja de esperar.
//
// El canal de tareas nunca se cierra: el cierre se señala por un canal
// aparte, así un Submit bloqueado en la cola llena despierta con false en
// vez de entrar en pánico contra un canal cerrado.
type Pool struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

func New(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			task()
		case <-p.done:
			// Drena lo que quedó encolado antes de salir.
			for {
				select {
				case task := <-p.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit encola una tarea. Bloquea si la cola está llena y devuelve false si
// el pool se cierra mientras espera (o ya estaba cerrado).
func (p *Pool) Submit(task func()) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.tasks <- task:
		return true
	case <-p.done:
		return false
	}
}

// Shutdown deja de aceptar tareas y espera a que terminen las encoladas,
// como máximo grace. Devuelve true si el drenaje terminó a tiempo.
func (p *Pool) Shutdown(grace time.Duration) bool {
	p.once.Do(func() { close(p.done) })

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return true
	case <-time.After(grace):
		return false
	}
}
