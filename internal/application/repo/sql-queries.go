package repo

// ORDERS

const createOrder = `INSERT INTO orders (
                    id, customer_id, total_amount, status, pickup_zone, delivery_zone)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
RETURNING id;`

const createOrderItem = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
VALUES ($1, $2, $3, $4)`

const getOrder = `SELECT id, customer_id, total_amount, status, pickup_zone, delivery_zone,
       payment_id, cancel_reason, created_at, updated_at
FROM orders WHERE id = $1`

const getOrderItems = `SELECT product_id, quantity, unit_price
FROM order_items WHERE order_id = $1`

// conditional: only non-terminal orders move
const updateOrderStatus = `UPDATE orders
SET status = $2, cancel_reason = $3, updated_at = now()
WHERE id = $1 AND status NOT IN ('CANCELLED','FAILED','COMPLETED')`

const setOrderPayment = `UPDATE orders
SET payment_id = $2, updated_at = now()
WHERE id = $1`

// client-initiated cancel: an order that reached payment must go through the
// refund compensation instead
const cancelPendingOrder = `UPDATE orders
SET status = 'CANCELLED', cancel_reason = $2, updated_at = now()
WHERE id = $1 AND status = 'PENDING'`

// STOCK

const reserveStock = `UPDATE products
SET available = available - $2, reserved = reserved + $2, updated_at = now()
WHERE product_id = $1 AND available >= $2`

const confirmStock = `UPDATE products
SET reserved = reserved - $2, updated_at = now()
WHERE product_id = $1 AND reserved >= $2`

const releaseStock = `UPDATE products
SET available = available + $2, reserved = reserved - $2, updated_at = now()
WHERE product_id = $1 AND reserved >= $2`

// RESERVATIONS

const insertReservation = `INSERT INTO stock_reservations (
  reservation_id, order_id, product_id, quantity, customer_id, status, expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getReservationsByOrder = `SELECT reservation_id, order_id, product_id, quantity,
       customer_id, status, expires_at, created_at
FROM stock_reservations
WHERE order_id = $1`

// compare-and-swap: only ACTIVE rows transition
const transitionReservation = `UPDATE stock_reservations
SET status = $2
WHERE reservation_id = $1 AND status = 'ACTIVE'`

const expiredReservations = `SELECT reservation_id, order_id, product_id, quantity,
       customer_id, status, expires_at, created_at
FROM stock_reservations
WHERE status = 'ACTIVE' AND expires_at < now()
ORDER BY expires_at
LIMIT $1`

const countActiveReservations = `SELECT count(*) FROM stock_reservations WHERE status = 'ACTIVE'`

// CARRIERS / SHIPMENTS

const bestCarrierForRoute = `SELECT carrier_id, name, rating, active, zones
FROM carriers
WHERE active AND zones @> ARRAY[$1, $2]::text[]
ORDER BY rating DESC
LIMIT 1`

const insertShipment = `INSERT INTO shipments (
  shipment_id, order_id, status, pickup_zone, delivery_zone
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id) DO NOTHING
RETURNING shipment_id`

const assignShipment = `UPDATE shipments
SET carrier_id = $2, status = 'ASSIGNED', estimated_delivery = $3
WHERE shipment_id = $1 AND status = 'PENDING'`

const markShipmentDelivered = `UPDATE shipments
SET status = 'DELIVERED'
WHERE order_id = $1 AND status = 'ASSIGNED'`

const getShipmentByOrder = `SELECT shipment_id, order_id, carrier_id, status,
       pickup_zone, delivery_zone, estimated_delivery, created_at
FROM shipments WHERE order_id = $1`

// SAGA STATE

const insertSagaState = `INSERT INTO saga_states (saga_id, order_id, status, current_step)
VALUES ($1, $2, $3, $4)
ON CONFLICT (saga_id) DO NOTHING`

const advanceSaga = `UPDATE saga_states
SET status = $2, current_step = $3, last_error = $4, updated_at = now()
WHERE saga_id = $1 AND status NOT IN ('COMPLETED','CANCELLED','FAILED')`

const stalledSagas = `SELECT saga_id, order_id, status, current_step, last_error, created_at, updated_at
FROM saga_states
WHERE status NOT IN ('COMPLETED','CANCELLED','FAILED') AND updated_at < $1
ORDER BY updated_at
LIMIT $2`

const getSagaByOrder = `SELECT saga_id, order_id, status, current_step, last_error, created_at, updated_at
FROM saga_states WHERE order_id = $1`

// INBOX (consumer-side dedup on event_id)

const markEventProcessed = `INSERT INTO processed_events (event_id, topic)
VALUES ($1, $2)
ON CONFLICT (event_id) DO NOTHING`

// OUTBOX

const insertOutboxQuery = `
INSERT INTO outbox_event (
  event_id, aggregate_type, aggregate_id, event_type, event_version, payload, status, attempts, next_attempt_at, created_at
) VALUES ($1,$2,$3,$4,$5, ($6)::jsonb, $7, 0, now(), now())
RETURNING id
`

// id is assigned in creation order, so a single poller drains each aggregate
// in FIFO order
const reserveBatchSQL = `
WITH picked AS (
	SELECT id
  	FROM outbox_event
  	WHERE status IN ('NEW','FAILED')
		AND next_attempt_at <= now()
    	AND attempts < $3
  	ORDER BY id
  	FOR UPDATE SKIP LOCKED
	LIMIT $2
)
UPDATE outbox_event AS o
SET next_attempt_at = now() + $1::interval
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.event_id, o.aggregate_type, o.aggregate_id, o.event_type, o.event_version, o.payload, o.status, o.attempts, o.next_attempt_at, o.created_at;
`

const markFailedSQL = `
UPDATE outbox_event
SET status=$2, attempts=attempts+1, next_attempt_at=$3
WHERE event_id=$1`

const markGaveUpSQL = `
UPDATE outbox_event
SET status=$2, attempts=attempts+1, next_attempt_at = now()
WHERE event_id=$1
`

// SENT is terminal-successful and set exactly once
const markSentSQL = `UPDATE outbox_event SET status=$2 WHERE event_id=$1 AND status <> $2`
